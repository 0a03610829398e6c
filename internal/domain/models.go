// Package domain defines the competition entities and the store
// contracts shared by the badge and scoring engines.
package domain

import "time"

// SubmissionStatus tracks the review lifecycle of a biomarker submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// EntryMethod records how a submission's biomarkers were captured.
type EntryMethod string

const (
	EntryMethodManual EntryMethod = "manual"
	EntryMethodScan   EntryMethod = "scan"
)

// MembershipRole distinguishes league owners from regular members.
type MembershipRole string

const (
	RoleOwner  MembershipRole = "owner"
	RoleMember MembershipRole = "member"
)

// BadgeCategory groups badge rules for category-filtered evaluation.
type BadgeCategory string

const (
	CategoryProfile   BadgeCategory = "profile"
	CategoryStreak    BadgeCategory = "streak"
	CategoryThreshold BadgeCategory = "threshold"
	CategoryRank      BadgeCategory = "rank"
	CategoryLeague    BadgeCategory = "league"
	CategorySeasonal  BadgeCategory = "seasonal"
)

// Athlete is a competition participant. Profile fields are managed by
// external flows and read-only here.
type Athlete struct {
	ID               string
	DisplayName      string
	Verified         bool
	ChronologicalAge float64
	CreatedAt        time.Time
}

// BiomarkerSubmission is one scored biomarker panel. AgeReduction is
// chronological age minus PhenoAge, computed and validated upstream.
type BiomarkerSubmission struct {
	ID           string
	AthleteID    string
	LeagueID     string // empty for solo submissions
	SeasonID     string
	PhenoAge     float64
	AgeReduction float64
	PaceOfAging  float64
	Status       SubmissionStatus
	EntryMethod  EntryMethod
	SubmittedAt  time.Time
}

// League is a team of athletes competing for an aggregate score. Tier
// caps member capacity and plays no part in scoring.
type League struct {
	ID      string
	Name    string
	OwnerID string
	Tier    string
}

// LeagueMembership links an athlete to a league. Unique per pair.
type LeagueMembership struct {
	LeagueID  string
	AthleteID string
	Role      MembershipRole
}

// MembershipSnapshot is the badge-context view of a membership. The
// member count is batched in by the context loader so league rules need
// no lookups of their own.
type MembershipSnapshot struct {
	LeagueID    string
	Role        MembershipRole
	MemberCount int
}

// LeagueStanding is one league's leaderboard row for a season. Rank is
// derived, never authoritative: every scoring pass recomputes it.
type LeagueStanding struct {
	LeagueID      string
	SeasonID      string
	Rank          int
	PreviousRank  int
	Score         float64
	TotalMembers  int
	ActiveMembers int
	BestScore     float64
	WorstScore    float64
	UpdatedAt     time.Time
}

// AthleteStanding is one athlete's leaderboard row for a season, ranked
// by best approved age reduction.
type AthleteStanding struct {
	AthleteID     string
	SeasonID      string
	Rank          int
	PreviousRank  int
	BestReduction float64
	UpdatedAt     time.Time
}

// Badge is a static catalog entry seeded externally. The engines read
// the catalog but never write to it.
type Badge struct {
	ID       string
	Slug     string
	Category BadgeCategory
	Name     string
}

// AthleteBadge is an award record, unique per (athlete, badge).
// Awards are monotonic: once created, never deleted or duplicated.
type AthleteBadge struct {
	AthleteID string
	BadgeID   string
	AwardedAt time.Time
}

// ActivityEvent is an append-only feed entry describing something that
// happened to an athlete (badge earned, rank pass completed).
type ActivityEvent struct {
	ID         string
	Type       string
	AthleteID  string
	Message    string
	Data       map[string]any
	OccurredAt time.Time
}

// RankAssignment carries one freshly computed rank for a scored entity
// (league or athlete).
type RankAssignment struct {
	EntityID string
	Rank     int
}
