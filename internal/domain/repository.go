package domain

import (
	"context"
	"errors"
)

var (
	// ErrAthleteNotFound is returned when an athlete cannot be located.
	ErrAthleteNotFound = errors.New("athlete not found")
	// ErrLeagueNotFound is returned when a league cannot be located.
	ErrLeagueNotFound = errors.New("league not found")
	// ErrStandingNotFound indicates a rank pass referenced a standing
	// row that no longer exists; the whole pass must be retried.
	ErrStandingNotFound = errors.New("league standing not found")
)

// AthleteStore reads athlete profiles.
type AthleteStore interface {
	FindAthlete(ctx context.Context, athleteID string) (*Athlete, error)
}

// SubmissionStore reads the append-only submission ledger. Only
// approved submissions are ever returned.
type SubmissionStore interface {
	// ListApprovedByAthlete returns an athlete's approved submissions
	// ordered ascending by SubmittedAt.
	ListApprovedByAthlete(ctx context.Context, athleteID string) ([]BiomarkerSubmission, error)
	// ListApprovedByLeague returns approved submissions attached to a
	// league. An empty seasonID means all seasons.
	ListApprovedByLeague(ctx context.Context, leagueID, seasonID string) ([]BiomarkerSubmission, error)
	// ListApprovedBySeason returns all approved submissions for a
	// season, league-attached or not.
	ListApprovedBySeason(ctx context.Context, seasonID string) ([]BiomarkerSubmission, error)
}

// LeagueStore reads leagues and their memberships.
type LeagueStore interface {
	FindLeague(ctx context.Context, leagueID string) (*League, error)
	ListLeagueIDs(ctx context.Context) ([]string, error)
	ListMemberships(ctx context.Context, athleteID string) ([]LeagueMembership, error)
	ListMembers(ctx context.Context, leagueID string) ([]string, error)
	CountMembers(ctx context.Context, leagueID string) (int, error)
}

// LeaderboardStore owns the derived standings rows. Only the scoring
// engine writes to it.
type LeaderboardStore interface {
	LatestAthleteStanding(ctx context.Context, athleteID string) (*AthleteStanding, error)
	ListLeagueStandings(ctx context.Context, seasonID string) ([]LeagueStanding, error)
	UpsertLeagueStanding(ctx context.Context, standing LeagueStanding) error
	DeleteLeagueStanding(ctx context.Context, leagueID, seasonID string) error
	// ApplyLeagueRanks installs the given ranks for a season in a single
	// all-or-nothing step, capturing each row's previous rank.
	ApplyLeagueRanks(ctx context.Context, seasonID string, ranks []RankAssignment) error
	// ReplaceAthleteStandings swaps the athlete board for a season in a
	// single all-or-nothing step; existing rows keep their old rank in
	// PreviousRank and rows for absent athletes are removed.
	ReplaceAthleteStandings(ctx context.Context, seasonID string, standings []AthleteStanding) error
}

// BadgeStore reads the badge catalog and records awards.
type BadgeStore interface {
	BadgeCatalog(ctx context.Context) ([]Badge, error)
	AwardedSlugs(ctx context.Context, athleteID string) (map[string]struct{}, error)
	// InsertAwardIfAbsent creates the award unless it already exists.
	// Uniqueness is enforced at the storage layer; a conflict reports
	// created=false and is not an error.
	InsertAwardIfAbsent(ctx context.Context, athleteID, badgeID string) (bool, error)
}

// ActivityLog appends feed events. Appends are best-effort from the
// engines' point of view.
type ActivityLog interface {
	AppendActivityEvent(ctx context.Context, event ActivityEvent) error
}

// SeasonLocker serializes scoring and rank passes per season. Two
// concurrent approval triggers for the same season must not interleave.
type SeasonLocker interface {
	WithSeasonLock(ctx context.Context, seasonID string, fn func(context.Context) error) error
}
