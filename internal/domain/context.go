package domain

import (
	"context"
	"fmt"
	"sort"
)

// BadgeContext is an immutable snapshot of one athlete's state used for
// badge rule evaluation. It is built fresh for every evaluation pass
// and only ever read by rules.
type BadgeContext struct {
	Athlete        Athlete
	Submissions    []BiomarkerSubmission // approved, ascending by SubmittedAt
	Memberships    []MembershipSnapshot
	LatestStanding *AthleteStanding // nil when the athlete is unranked
}

// Loader assembles BadgeContext snapshots, batching all underlying
// reads so rule evaluation never issues duplicate queries.
type Loader struct {
	athletes    AthleteStore
	submissions SubmissionStore
	leagues     LeagueStore
	boards      LeaderboardStore
}

// NewLoader constructs a Loader over the given stores.
func NewLoader(athletes AthleteStore, submissions SubmissionStore, leagues LeagueStore, boards LeaderboardStore) *Loader {
	return &Loader{
		athletes:    athletes,
		submissions: submissions,
		leagues:     leagues,
		boards:      boards,
	}
}

// Load builds a snapshot for one athlete. It returns ErrAthleteNotFound
// for unknown athletes and performs no writes. Snapshots are never
// cached across calls because upstream state can change between them.
func (l *Loader) Load(ctx context.Context, athleteID string) (*BadgeContext, error) {
	athlete, err := l.athletes.FindAthlete(ctx, athleteID)
	if err != nil {
		return nil, fmt.Errorf("load athlete: %w", err)
	}
	if athlete == nil {
		return nil, ErrAthleteNotFound
	}

	submissions, err := l.submissions.ListApprovedByAthlete(ctx, athleteID)
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	// Streak rules depend on chronological order; enforce it here
	// rather than trusting every store implementation.
	sort.SliceStable(submissions, func(i, j int) bool {
		return submissions[i].SubmittedAt.Before(submissions[j].SubmittedAt)
	})

	memberships, err := l.leagues.ListMemberships(ctx, athleteID)
	if err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}
	snapshots := make([]MembershipSnapshot, 0, len(memberships))
	for _, m := range memberships {
		count, err := l.leagues.CountMembers(ctx, m.LeagueID)
		if err != nil {
			return nil, fmt.Errorf("count members of league %s: %w", m.LeagueID, err)
		}
		snapshots = append(snapshots, MembershipSnapshot{
			LeagueID:    m.LeagueID,
			Role:        m.Role,
			MemberCount: count,
		})
	}

	standing, err := l.boards.LatestAthleteStanding(ctx, athleteID)
	if err != nil {
		return nil, fmt.Errorf("load standing: %w", err)
	}

	return &BadgeContext{
		Athlete:        *athlete,
		Submissions:    submissions,
		Memberships:    snapshots,
		LatestStanding: standing,
	}, nil
}
