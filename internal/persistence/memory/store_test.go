package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cancelei/longevity-world-cup/internal/domain"
)

func TestInsertAwardIfAbsent(t *testing.T) {
	store := NewStore()
	store.AddBadge(domain.Badge{ID: "badge-1", Slug: "verified"})

	created, err := store.InsertAwardIfAbsent(context.Background(), "ath-1", "badge-1")
	require.NoError(t, err)
	require.True(t, created)

	created, err = store.InsertAwardIfAbsent(context.Background(), "ath-1", "badge-1")
	require.NoError(t, err)
	require.False(t, created, "second insert must be a no-op")

	awarded, err := store.AwardedSlugs(context.Background(), "ath-1")
	require.NoError(t, err)
	require.Contains(t, awarded, "verified")
	require.Len(t, awarded, 1)
}

func TestApplyLeagueRanksValidatesBeforeWriting(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertLeagueStanding(context.Background(), domain.LeagueStanding{
		LeagueID: "lg-1", SeasonID: "season-1", Score: 5, ActiveMembers: 1, UpdatedAt: now,
	}))

	err := store.ApplyLeagueRanks(context.Background(), "season-1", []domain.RankAssignment{
		{EntityID: "lg-1", Rank: 1},
		{EntityID: "lg-missing", Rank: 2},
	})
	require.ErrorIs(t, err, domain.ErrStandingNotFound)

	// The valid row must be untouched after the failed batch.
	standings, err := store.ListLeagueStandings(context.Background(), "season-1")
	require.NoError(t, err)
	require.Len(t, standings, 1)
	require.Zero(t, standings[0].Rank)
}

func TestApplyLeagueRanksCapturesPreviousRank(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertLeagueStanding(context.Background(), domain.LeagueStanding{
		LeagueID: "lg-1", SeasonID: "season-1", Score: 5, ActiveMembers: 1, UpdatedAt: now,
	}))

	require.NoError(t, store.ApplyLeagueRanks(context.Background(), "season-1", []domain.RankAssignment{{EntityID: "lg-1", Rank: 2}}))
	require.NoError(t, store.ApplyLeagueRanks(context.Background(), "season-1", []domain.RankAssignment{{EntityID: "lg-1", Rank: 1}}))

	standings, err := store.ListLeagueStandings(context.Background(), "season-1")
	require.NoError(t, err)
	require.Equal(t, 1, standings[0].Rank)
	require.Equal(t, 2, standings[0].PreviousRank)
}

func TestUpsertLeagueStandingPreservesRankFields(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertLeagueStanding(context.Background(), domain.LeagueStanding{
		LeagueID: "lg-1", SeasonID: "season-1", Score: 5, ActiveMembers: 1, UpdatedAt: now,
	}))
	require.NoError(t, store.ApplyLeagueRanks(context.Background(), "season-1", []domain.RankAssignment{{EntityID: "lg-1", Rank: 3}}))

	// A rescore between rank passes keeps the last assigned ranks.
	require.NoError(t, store.UpsertLeagueStanding(context.Background(), domain.LeagueStanding{
		LeagueID: "lg-1", SeasonID: "season-1", Score: 8, ActiveMembers: 2, UpdatedAt: now.Add(time.Hour),
	}))

	standings, err := store.ListLeagueStandings(context.Background(), "season-1")
	require.NoError(t, err)
	require.Equal(t, 3, standings[0].Rank)
	require.InDelta(t, 8.0, standings[0].Score, 1e-9)
}

func TestReplaceAthleteStandingsDropsStaleRows(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	store.SetAthleteStanding(domain.AthleteStanding{AthleteID: "ath-old", SeasonID: "season-1", Rank: 1, UpdatedAt: now})
	store.SetAthleteStanding(domain.AthleteStanding{AthleteID: "ath-keep", SeasonID: "season-1", Rank: 2, UpdatedAt: now})
	store.SetAthleteStanding(domain.AthleteStanding{AthleteID: "ath-other", SeasonID: "season-2", Rank: 1, UpdatedAt: now})

	require.NoError(t, store.ReplaceAthleteStandings(context.Background(), "season-1", []domain.AthleteStanding{
		{AthleteID: "ath-keep", SeasonID: "season-1", Rank: 1, BestReduction: 6, UpdatedAt: now.Add(time.Hour)},
	}))

	gone, err := store.LatestAthleteStanding(context.Background(), "ath-old")
	require.NoError(t, err)
	require.Nil(t, gone)

	kept, err := store.LatestAthleteStanding(context.Background(), "ath-keep")
	require.NoError(t, err)
	require.NotNil(t, kept)
	require.Equal(t, 1, kept.Rank)
	require.Equal(t, 2, kept.PreviousRank, "previous rank carried from the replaced row")

	// Other seasons are untouched.
	other, err := store.LatestAthleteStanding(context.Background(), "ath-other")
	require.NoError(t, err)
	require.NotNil(t, other)
}

func TestWithSeasonLockSerializesSameSeason(t *testing.T) {
	store := NewStore()

	unblock := make(chan struct{})
	firstHeld := make(chan struct{})
	secondDone := make(chan struct{})

	go func() {
		_ = store.WithSeasonLock(context.Background(), "season-1", func(context.Context) error {
			close(firstHeld)
			<-unblock
			return nil
		})
	}()

	<-firstHeld
	go func() {
		_ = store.WithSeasonLock(context.Background(), "season-1", func(context.Context) error {
			close(secondDone)
			return nil
		})
	}()

	select {
	case <-secondDone:
		t.Fatal("second pass ran while the first held the season lock")
	case <-time.After(50 * time.Millisecond):
	}

	close(unblock)
	select {
	case <-secondDone:
	case <-time.After(time.Second):
		t.Fatal("second pass never acquired the lock")
	}
}
