// Package badges evaluates the achievement rule catalog and records
// awards idempotently.
package badges

import (
	"context"
	"fmt"
	"time"

	"github.com/cancelei/longevity-world-cup/internal/domain"
)

// Streak and threshold constants for the rule catalog.
const (
	consistencySeasons   = 3
	climberStreakLength  = 5
	comebackMargin       = 3.0
	ageBenderReduction   = 5.0
	superAgerReduction   = 10.0
	dataScientistEntries = 10
	topTenRank           = 10
	podiumRank           = 3
	teamPlayerLeagues    = 3
	founderMemberCount   = 10
)

// RuleContext carries everything a predicate may inspect: the batched
// athlete snapshot, the evaluation clock, and a submission store handle
// used only by rules that need a scoped lookup of their own.
type RuleContext struct {
	*domain.BadgeContext
	Now   time.Time
	Store domain.SubmissionStore
}

// Predicate decides eligibility from a rule context. Predicates are
// pure: no writes, deterministic for an unchanged context.
type Predicate func(ctx context.Context, rc *RuleContext) (bool, error)

// Rule ties a badge slug to its category and eligibility predicate.
type Rule struct {
	Slug     string
	Category domain.BadgeCategory
	Eligible Predicate
}

// Catalog returns the static rule table. Rules are independent; the
// engine evaluates each in isolation.
func Catalog() []Rule {
	return []Rule{
		{Slug: "verified", Category: domain.CategoryProfile, Eligible: verified},
		{Slug: "anniversary", Category: domain.CategoryProfile, Eligible: anniversary},
		{Slug: "consistency", Category: domain.CategoryStreak, Eligible: consistency},
		{Slug: "steady-climber", Category: domain.CategoryStreak, Eligible: steadyClimber},
		{Slug: "comeback-kid", Category: domain.CategoryStreak, Eligible: comebackKid},
		{Slug: "age-bender", Category: domain.CategoryThreshold, Eligible: reductionAtLeast(ageBenderReduction)},
		{Slug: "super-ager", Category: domain.CategoryThreshold, Eligible: reductionAtLeast(superAgerReduction)},
		{Slug: "data-scientist", Category: domain.CategoryThreshold, Eligible: dataScientist},
		{Slug: "top-10", Category: domain.CategoryRank, Eligible: rankAtMost(topTenRank)},
		{Slug: "podium", Category: domain.CategoryRank, Eligible: rankAtMost(podiumRank)},
		{Slug: "team-player", Category: domain.CategoryLeague, Eligible: teamPlayer},
		{Slug: "league-founder", Category: domain.CategoryLeague, Eligible: leagueFounder},
		{Slug: "league-mvp", Category: domain.CategoryLeague, Eligible: leagueMVP},
		{Slug: "winter-warrior", Category: domain.CategorySeasonal, Eligible: submittedInMonths(time.December)},
		{Slug: "summer-soldier", Category: domain.CategorySeasonal, Eligible: submittedInMonths(time.June, time.July, time.August)},
	}
}

func verified(_ context.Context, rc *RuleContext) (bool, error) {
	return rc.Athlete.Verified, nil
}

func anniversary(_ context.Context, rc *RuleContext) (bool, error) {
	return !rc.Now.Before(rc.Athlete.CreatedAt.AddDate(1, 0, 0)), nil
}

func consistency(_ context.Context, rc *RuleContext) (bool, error) {
	seasons := make(map[string]struct{})
	for _, sub := range rc.Submissions {
		seasons[sub.SeasonID] = struct{}{}
	}
	return len(seasons) >= consistencySeasons, nil
}

// steadyClimber looks for a run of climberStreakLength consecutive
// submissions where each age reduction strictly exceeds the previous.
// The counter resets to 1 on any non-increase.
func steadyClimber(_ context.Context, rc *RuleContext) (bool, error) {
	streak := 0
	for i, sub := range rc.Submissions {
		if i > 0 && sub.AgeReduction > rc.Submissions[i-1].AgeReduction {
			streak++
		} else {
			streak = 1
		}
		if streak >= climberStreakLength {
			return true, nil
		}
	}
	return false, nil
}

// comebackKid is satisfied when, after a submission whose age reduction
// fell below its immediate predecessor, some later submission exceeds
// the declined value by at least comebackMargin.
func comebackKid(_ context.Context, rc *RuleContext) (bool, error) {
	subs := rc.Submissions
	for i := 1; i < len(subs); i++ {
		if subs[i].AgeReduction >= subs[i-1].AgeReduction {
			continue
		}
		declined := subs[i].AgeReduction
		for j := i + 1; j < len(subs); j++ {
			if subs[j].AgeReduction-declined >= comebackMargin {
				return true, nil
			}
		}
	}
	return false, nil
}

func reductionAtLeast(threshold float64) Predicate {
	return func(_ context.Context, rc *RuleContext) (bool, error) {
		for _, sub := range rc.Submissions {
			if sub.AgeReduction >= threshold {
				return true, nil
			}
		}
		return false, nil
	}
}

func dataScientist(_ context.Context, rc *RuleContext) (bool, error) {
	return len(rc.Submissions) >= dataScientistEntries, nil
}

func rankAtMost(limit int) Predicate {
	return func(_ context.Context, rc *RuleContext) (bool, error) {
		standing := rc.LatestStanding
		return standing != nil && standing.Rank >= 1 && standing.Rank <= limit, nil
	}
}

func teamPlayer(_ context.Context, rc *RuleContext) (bool, error) {
	return len(rc.Memberships) >= teamPlayerLeagues, nil
}

func leagueFounder(_ context.Context, rc *RuleContext) (bool, error) {
	for _, m := range rc.Memberships {
		if m.Role == domain.RoleOwner && m.MemberCount >= founderMemberCount {
			return true, nil
		}
	}
	return false, nil
}

// leagueMVP checks whether the athlete is the single top age-reduction
// holder within any league they belong to. The per-league submission
// set is not part of the batched context, so this rule alone performs
// its own scoped query.
func leagueMVP(ctx context.Context, rc *RuleContext) (bool, error) {
	for _, m := range rc.Memberships {
		subs, err := rc.Store.ListApprovedByLeague(ctx, m.LeagueID, "")
		if err != nil {
			return false, fmt.Errorf("list league %s submissions: %w", m.LeagueID, err)
		}
		if topHolder(subs) == rc.Athlete.ID {
			return true, nil
		}
	}
	return false, nil
}

// topHolder returns the athlete holding the league's single best age
// reduction, or "" when the league is empty or the top is shared.
func topHolder(subs []domain.BiomarkerSubmission) string {
	bests := make(map[string]float64)
	for _, sub := range subs {
		if best, ok := bests[sub.AthleteID]; !ok || sub.AgeReduction > best {
			bests[sub.AthleteID] = sub.AgeReduction
		}
	}

	var holder string
	var top float64
	tied := false
	for athleteID, best := range bests {
		switch {
		case holder == "" || best > top:
			holder, top, tied = athleteID, best, false
		case best == top:
			tied = true
		}
	}
	if tied {
		return ""
	}
	return holder
}

func submittedInMonths(months ...time.Month) Predicate {
	allowed := make(map[time.Month]struct{}, len(months))
	for _, m := range months {
		allowed[m] = struct{}{}
	}
	return func(_ context.Context, rc *RuleContext) (bool, error) {
		for _, sub := range rc.Submissions {
			if _, ok := allowed[sub.SubmittedAt.Month()]; ok {
				return true, nil
			}
		}
		return false, nil
	}
}
