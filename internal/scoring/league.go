// Package scoring computes league aggregate scores and leaderboard
// ranks for a season.
package scoring

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/cancelei/longevity-world-cup/internal/domain"
	"github.com/cancelei/longevity-world-cup/internal/observability"
)

// topContributors caps how many member bests feed a league's average.
// The cap stops sandbagging: padding a league with low performers
// cannot dilute the score once the cap is full.
const topContributors = 10

// LeagueScore is the computed aggregate for one league and season.
type LeagueScore struct {
	LeagueID      string
	SeasonID      string
	Score         float64
	TotalMembers  int
	ActiveMembers int
	BestScore     float64
	WorstScore    float64
}

// Active reports whether any member contributed a qualifying
// submission. Inactive leagues are dropped from the leaderboard on the
// next rank pass.
func (s LeagueScore) Active() bool { return s.ActiveMembers > 0 }

// LeagueError records a per-league failure during a season refresh.
type LeagueError struct {
	LeagueID string
	Message  string
}

// RefreshResult summarizes a full-season refresh.
type RefreshResult struct {
	Processed int
	Updated   int
	Errors    []LeagueError
}

// Engine computes league scores and drives rank passes. It is
// stateless and synchronous; per-season serialization comes from the
// injected SeasonLocker.
type Engine struct {
	leagues     domain.LeagueStore
	submissions domain.SubmissionStore
	boards      domain.LeaderboardStore
	locker      domain.SeasonLocker
	now         func() time.Time
	logger      *log.Logger
}

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithClock overrides the pass timestamp clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger overrides the engine logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine constructs a scoring Engine over the given stores.
func NewEngine(leagues domain.LeagueStore, submissions domain.SubmissionStore, boards domain.LeaderboardStore, locker domain.SeasonLocker, opts ...Option) *Engine {
	e := &Engine{
		leagues:     leagues,
		submissions: submissions,
		boards:      boards,
		locker:      locker,
		now:         time.Now,
		logger:      log.New(log.Writer(), "[scoring] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ScoreLeague computes one league's aggregate for a season: each
// member's best approved submission, descending sort, top-N
// truncation, arithmetic mean of the used subset. Pure read.
func (e *Engine) ScoreLeague(ctx context.Context, leagueID, seasonID string) (*LeagueScore, error) {
	league, err := e.leagues.FindLeague(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("find league: %w", err)
	}
	if league == nil {
		return nil, domain.ErrLeagueNotFound
	}

	members, err := e.leagues.ListMembers(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	memberSet := make(map[string]struct{}, len(members))
	for _, athleteID := range members {
		memberSet[athleteID] = struct{}{}
	}

	subs, err := e.submissions.ListApprovedByLeague(ctx, leagueID, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	bestByMember := make(map[string]float64)
	for _, sub := range subs {
		if _, ok := memberSet[sub.AthleteID]; !ok {
			continue
		}
		if best, ok := bestByMember[sub.AthleteID]; !ok || sub.AgeReduction > best {
			bestByMember[sub.AthleteID] = sub.AgeReduction
		}
	}

	score := &LeagueScore{
		LeagueID:      leagueID,
		SeasonID:      seasonID,
		TotalMembers:  len(members),
		ActiveMembers: len(bestByMember),
	}
	if len(bestByMember) == 0 {
		return score, nil
	}

	bests := make([]float64, 0, len(bestByMember))
	for _, best := range bestByMember {
		bests = append(bests, best)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(bests)))

	used := bests
	if len(used) > topContributors {
		used = used[:topContributors]
	}

	var sum float64
	for _, v := range used {
		sum += v
	}
	score.Score = sum / float64(len(used))
	score.BestScore = used[0]
	score.WorstScore = used[len(used)-1]
	return score, nil
}

// OnSubmissionApproved reacts to a submission approval: under the
// season lock, rescore the owning league, then recompute ranks for the
// whole season. Solo submissions skip the league pass but still
// refresh the athlete board.
func (e *Engine) OnSubmissionApproved(ctx context.Context, athleteID, leagueID, seasonID string) error {
	return e.locker.WithSeasonLock(ctx, seasonID, func(ctx context.Context) error {
		if leagueID != "" {
			score, err := e.ScoreLeague(ctx, leagueID, seasonID)
			if err != nil {
				return err
			}
			if err := e.storeScore(ctx, *score); err != nil {
				return err
			}
			if err := e.rerankLeagues(ctx, seasonID); err != nil {
				return err
			}
		}
		if err := e.rerankAthletes(ctx, seasonID); err != nil {
			return err
		}
		observability.RecordRankPass(seasonID, e.now())
		return nil
	})
}

// RefreshSeason rescores every league for a season and runs one rank
// pass. Per-league failures are collected, not fatal; a failed rank
// pass is fatal for the whole refresh and safe to retry in full.
func (e *Engine) RefreshSeason(ctx context.Context, seasonID string) (*RefreshResult, error) {
	result := &RefreshResult{}
	err := e.locker.WithSeasonLock(ctx, seasonID, func(ctx context.Context) error {
		start := e.now()

		leagueIDs, err := e.leagues.ListLeagueIDs(ctx)
		if err != nil {
			return fmt.Errorf("list leagues: %w", err)
		}

		for _, leagueID := range leagueIDs {
			result.Processed++
			score, err := e.ScoreLeague(ctx, leagueID, seasonID)
			if err != nil {
				result.Errors = append(result.Errors, LeagueError{LeagueID: leagueID, Message: err.Error()})
				continue
			}
			if err := e.storeScore(ctx, *score); err != nil {
				result.Errors = append(result.Errors, LeagueError{LeagueID: leagueID, Message: err.Error()})
				continue
			}
			result.Updated++
		}

		if err := e.rerankLeagues(ctx, seasonID); err != nil {
			return err
		}
		if err := e.rerankAthletes(ctx, seasonID); err != nil {
			return err
		}

		observability.RecordRankPass(seasonID, e.now())
		observability.ObserveRefresh(e.now().Sub(start))
		e.logger.Printf("season %s refreshed (processed=%d, updated=%d, errors=%d)", seasonID, result.Processed, result.Updated, len(result.Errors))
		return nil
	})
	return result, err
}

func (e *Engine) storeScore(ctx context.Context, score LeagueScore) error {
	standing := domain.LeagueStanding{
		LeagueID:      score.LeagueID,
		SeasonID:      score.SeasonID,
		Score:         score.Score,
		TotalMembers:  score.TotalMembers,
		ActiveMembers: score.ActiveMembers,
		BestScore:     score.BestScore,
		WorstScore:    score.WorstScore,
		UpdatedAt:     e.now(),
	}
	if err := e.boards.UpsertLeagueStanding(ctx, standing); err != nil {
		return fmt.Errorf("upsert standing for league %s: %w", score.LeagueID, err)
	}
	return nil
}

// rerankLeagues recomputes ranks for every league in the season.
// Inactive leagues are removed from the board rather than ranked. The
// rank write is all-or-nothing; a partially ranked season never
// persists.
func (e *Engine) rerankLeagues(ctx context.Context, seasonID string) error {
	standings, err := e.boards.ListLeagueStandings(ctx, seasonID)
	if err != nil {
		return fmt.Errorf("list standings: %w", err)
	}

	active := standings[:0]
	for _, standing := range standings {
		if standing.ActiveMembers > 0 {
			active = append(active, standing)
			continue
		}
		if err := e.boards.DeleteLeagueStanding(ctx, standing.LeagueID, seasonID); err != nil {
			return fmt.Errorf("remove inactive league %s: %w", standing.LeagueID, err)
		}
	}

	ranks := AssignLeagueRanks(active)
	if err := e.boards.ApplyLeagueRanks(ctx, seasonID, ranks); err != nil {
		return fmt.Errorf("apply league ranks: %w", err)
	}
	return nil
}

// rerankAthletes rebuilds the individual athlete board for the season
// from each athlete's best approved submission.
func (e *Engine) rerankAthletes(ctx context.Context, seasonID string) error {
	subs, err := e.submissions.ListApprovedBySeason(ctx, seasonID)
	if err != nil {
		return fmt.Errorf("list season submissions: %w", err)
	}

	bests := make(map[string]float64)
	for _, sub := range subs {
		if best, ok := bests[sub.AthleteID]; !ok || sub.AgeReduction > best {
			bests[sub.AthleteID] = sub.AgeReduction
		}
	}

	now := e.now()
	standings := make([]domain.AthleteStanding, 0, len(bests))
	for athleteID, best := range bests {
		standings = append(standings, domain.AthleteStanding{
			AthleteID:     athleteID,
			SeasonID:      seasonID,
			BestReduction: best,
			UpdatedAt:     now,
		})
	}

	rankByAthlete := make(map[string]int, len(standings))
	for _, assignment := range AssignAthleteRanks(standings) {
		rankByAthlete[assignment.EntityID] = assignment.Rank
	}
	for i := range standings {
		standings[i].Rank = rankByAthlete[standings[i].AthleteID]
	}

	if err := e.boards.ReplaceAthleteStandings(ctx, seasonID, standings); err != nil {
		return fmt.Errorf("replace athlete standings: %w", err)
	}
	return nil
}
