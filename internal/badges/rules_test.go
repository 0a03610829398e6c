package badges

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cancelei/longevity-world-cup/internal/domain"
)

var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func contextWithReductions(reductions ...float64) *RuleContext {
	subs := make([]domain.BiomarkerSubmission, len(reductions))
	for i, r := range reductions {
		subs[i] = domain.BiomarkerSubmission{
			ID:           string(rune('a' + i)),
			AthleteID:    "ath-1",
			SeasonID:     "season-1",
			AgeReduction: r,
			Status:       domain.SubmissionApproved,
			SubmittedAt:  testNow.Add(time.Duration(i) * time.Hour),
		}
	}
	return &RuleContext{
		BadgeContext: &domain.BadgeContext{
			Athlete:     domain.Athlete{ID: "ath-1", CreatedAt: testNow.AddDate(-2, 0, 0)},
			Submissions: subs,
		},
		Now: testNow,
	}
}

func TestSteadyClimber(t *testing.T) {
	cases := []struct {
		name       string
		reductions []float64
		want       bool
	}{
		{"strictly increasing run of five", []float64{1, 2, 3, 4, 5}, true},
		{"broken run resets the streak", []float64{1, 2, 0, 1, 2}, false},
		{"run buried in a longer history", []float64{9, 1, 2, 3, 4, 5}, true},
		{"plateau does not count as increase", []float64{1, 2, 2, 3, 4, 5}, false},
		{"too short", []float64{1, 2, 3, 4}, false},
		{"empty", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := steadyClimber(context.Background(), contextWithReductions(tc.reductions...))
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestComebackKid(t *testing.T) {
	cases := []struct {
		name       string
		reductions []float64
		want       bool
	}{
		{"decline then recovery of five", []float64{5, 2, 7}, true},
		{"recovery of one is not enough", []float64{5, 4, 5}, false},
		{"recovery of exactly three qualifies", []float64{5, 2, 5}, true},
		{"no decline at all", []float64{1, 2, 3}, false},
		{"recovery before the decline does not count", []float64{8, 3, 2}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := comebackKid(context.Background(), contextWithReductions(tc.reductions...))
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestThresholdRulesInclusiveBoundary(t *testing.T) {
	ageBender := reductionAtLeast(ageBenderReduction)

	got, err := ageBender(context.Background(), contextWithReductions(4.99))
	require.NoError(t, err)
	require.False(t, got, "4.99 must not qualify")

	got, err = ageBender(context.Background(), contextWithReductions(5.00))
	require.NoError(t, err)
	require.True(t, got, "5.00 is an inclusive boundary")

	superAger := reductionAtLeast(superAgerReduction)
	got, err = superAger(context.Background(), contextWithReductions(9.5, 10))
	require.NoError(t, err)
	require.True(t, got)
}

func TestDataScientistCountsApprovedEntries(t *testing.T) {
	nine := make([]float64, 9)
	got, err := dataScientist(context.Background(), contextWithReductions(nine...))
	require.NoError(t, err)
	require.False(t, got)

	ten := make([]float64, 10)
	got, err = dataScientist(context.Background(), contextWithReductions(ten...))
	require.NoError(t, err)
	require.True(t, got)
}

func TestConsistencyCountsDistinctSeasons(t *testing.T) {
	rc := contextWithReductions(1, 2, 3)
	rc.Submissions[0].SeasonID = "s1"
	rc.Submissions[1].SeasonID = "s2"
	rc.Submissions[2].SeasonID = "s2"

	got, err := consistency(context.Background(), rc)
	require.NoError(t, err)
	require.False(t, got)

	rc.Submissions[2].SeasonID = "s3"
	got, err = consistency(context.Background(), rc)
	require.NoError(t, err)
	require.True(t, got)
}

func TestAnniversary(t *testing.T) {
	rc := contextWithReductions()
	rc.Athlete.CreatedAt = testNow.AddDate(0, 0, -400)

	got, err := anniversary(context.Background(), rc)
	require.NoError(t, err)
	require.True(t, got)

	rc.Athlete.CreatedAt = testNow.AddDate(0, 0, -100)
	got, err = anniversary(context.Background(), rc)
	require.NoError(t, err)
	require.False(t, got)
}

func TestRankRules(t *testing.T) {
	rc := contextWithReductions(1)

	topTen := rankAtMost(topTenRank)
	got, err := topTen(context.Background(), rc)
	require.NoError(t, err)
	require.False(t, got, "unranked athletes never qualify")

	rc.LatestStanding = &domain.AthleteStanding{AthleteID: "ath-1", SeasonID: "season-1", Rank: 10}
	got, err = topTen(context.Background(), rc)
	require.NoError(t, err)
	require.True(t, got)

	podium := rankAtMost(podiumRank)
	got, err = podium(context.Background(), rc)
	require.NoError(t, err)
	require.False(t, got)

	rc.LatestStanding.Rank = 3
	got, err = podium(context.Background(), rc)
	require.NoError(t, err)
	require.True(t, got)
}

func TestLeagueFounder(t *testing.T) {
	rc := contextWithReductions()
	rc.Memberships = []domain.MembershipSnapshot{
		{LeagueID: "lg-1", Role: domain.RoleMember, MemberCount: 50},
		{LeagueID: "lg-2", Role: domain.RoleOwner, MemberCount: 9},
	}

	got, err := leagueFounder(context.Background(), rc)
	require.NoError(t, err)
	require.False(t, got, "owning a small league is not enough")

	rc.Memberships[1].MemberCount = 10
	got, err = leagueFounder(context.Background(), rc)
	require.NoError(t, err)
	require.True(t, got)
}

func TestLeagueMVPRequiresSoleTopHolder(t *testing.T) {
	leagueSubs := []domain.BiomarkerSubmission{
		{AthleteID: "ath-1", LeagueID: "lg-1", AgeReduction: 8, Status: domain.SubmissionApproved},
		{AthleteID: "ath-1", LeagueID: "lg-1", AgeReduction: 3, Status: domain.SubmissionApproved},
		{AthleteID: "ath-2", LeagueID: "lg-1", AgeReduction: 6, Status: domain.SubmissionApproved},
	}
	store := &stubSubmissionStore{byLeague: map[string][]domain.BiomarkerSubmission{"lg-1": leagueSubs}}

	rc := &RuleContext{
		BadgeContext: &domain.BadgeContext{
			Athlete:     domain.Athlete{ID: "ath-1"},
			Memberships: []domain.MembershipSnapshot{{LeagueID: "lg-1", Role: domain.RoleMember, MemberCount: 2}},
		},
		Now:   testNow,
		Store: store,
	}

	got, err := leagueMVP(context.Background(), rc)
	require.NoError(t, err)
	require.True(t, got)

	// A tie for the top disqualifies everyone.
	store.byLeague["lg-1"] = append(store.byLeague["lg-1"], domain.BiomarkerSubmission{
		AthleteID: "ath-3", LeagueID: "lg-1", AgeReduction: 8, Status: domain.SubmissionApproved,
	})
	got, err = leagueMVP(context.Background(), rc)
	require.NoError(t, err)
	require.False(t, got)

	// Second place is not MVP.
	rc.BadgeContext.Athlete.ID = "ath-2"
	store.byLeague["lg-1"] = leagueSubs
	got, err = leagueMVP(context.Background(), rc)
	require.NoError(t, err)
	require.False(t, got)
}

func TestSeasonalRules(t *testing.T) {
	winter := submittedInMonths(time.December)
	summer := submittedInMonths(time.June, time.July, time.August)

	rc := contextWithReductions(1)
	rc.Submissions[0].SubmittedAt = time.Date(2025, time.December, 3, 0, 0, 0, 0, time.UTC)

	got, err := winter(context.Background(), rc)
	require.NoError(t, err)
	require.True(t, got)
	got, err = summer(context.Background(), rc)
	require.NoError(t, err)
	require.False(t, got)

	rc.Submissions[0].SubmittedAt = time.Date(2025, time.July, 20, 0, 0, 0, 0, time.UTC)
	got, err = summer(context.Background(), rc)
	require.NoError(t, err)
	require.True(t, got)
}

type stubSubmissionStore struct {
	byLeague map[string][]domain.BiomarkerSubmission
}

func (s *stubSubmissionStore) ListApprovedByAthlete(context.Context, string) ([]domain.BiomarkerSubmission, error) {
	return nil, nil
}

func (s *stubSubmissionStore) ListApprovedByLeague(_ context.Context, leagueID, _ string) ([]domain.BiomarkerSubmission, error) {
	return s.byLeague[leagueID], nil
}

func (s *stubSubmissionStore) ListApprovedBySeason(context.Context, string) ([]domain.BiomarkerSubmission, error) {
	return nil, nil
}
