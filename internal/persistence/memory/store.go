// Package memory provides an in-memory store for tests and local
// development. It implements every store contract the engines consume.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/cancelei/longevity-world-cup/internal/domain"
)

// Store keeps all competition state in maps guarded by a single lock.
type Store struct {
	mu sync.RWMutex

	athletes    map[string]domain.Athlete
	submissions map[string]domain.BiomarkerSubmission
	leagues     map[string]domain.League
	memberships map[string][]domain.LeagueMembership // by league ID

	leagueStandings  map[string]domain.LeagueStanding  // league|season
	athleteStandings map[string]domain.AthleteStanding // athlete|season

	badges map[string]domain.Badge             // by badge ID
	awards map[string]map[string]string        // athlete -> slug -> badge ID
	events []domain.ActivityEvent

	seasonLocks map[string]*sync.Mutex
	lockMu      sync.Mutex
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		athletes:         make(map[string]domain.Athlete),
		submissions:      make(map[string]domain.BiomarkerSubmission),
		leagues:          make(map[string]domain.League),
		memberships:      make(map[string][]domain.LeagueMembership),
		leagueStandings:  make(map[string]domain.LeagueStanding),
		athleteStandings: make(map[string]domain.AthleteStanding),
		badges:           make(map[string]domain.Badge),
		awards:           make(map[string]map[string]string),
		seasonLocks:      make(map[string]*sync.Mutex),
	}
}

func key(a, b string) string { return a + "|" + b }

// AddAthlete seeds an athlete.
func (s *Store) AddAthlete(athlete domain.Athlete) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.athletes[athlete.ID] = athlete
}

// AddSubmission seeds a submission, generating an ID when absent.
func (s *Store) AddSubmission(sub domain.BiomarkerSubmission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	s.submissions[sub.ID] = sub
}

// AddLeague seeds a league and its owner membership.
func (s *Store) AddLeague(league domain.League) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leagues[league.ID] = league
	if league.OwnerID != "" {
		s.memberships[league.ID] = append(s.memberships[league.ID], domain.LeagueMembership{
			LeagueID:  league.ID,
			AthleteID: league.OwnerID,
			Role:      domain.RoleOwner,
		})
	}
}

// AddMembership seeds a regular membership.
func (s *Store) AddMembership(leagueID, athleteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[leagueID] = append(s.memberships[leagueID], domain.LeagueMembership{
		LeagueID:  leagueID,
		AthleteID: athleteID,
		Role:      domain.RoleMember,
	})
}

// AddBadge seeds a catalog entry.
func (s *Store) AddBadge(badge domain.Badge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if badge.ID == "" {
		badge.ID = uuid.NewString()
	}
	s.badges[badge.ID] = badge
}

// SetAthleteStanding seeds a leaderboard row directly.
func (s *Store) SetAthleteStanding(standing domain.AthleteStanding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.athleteStandings[key(standing.AthleteID, standing.SeasonID)] = standing
}

// Events returns a copy of the appended activity events.
func (s *Store) Events() []domain.ActivityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

// FindAthlete implements domain.AthleteStore.
func (s *Store) FindAthlete(_ context.Context, athleteID string) (*domain.Athlete, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	athlete, ok := s.athletes[athleteID]
	if !ok {
		return nil, nil
	}
	return &athlete, nil
}

// ListApprovedByAthlete implements domain.SubmissionStore.
func (s *Store) ListApprovedByAthlete(_ context.Context, athleteID string) ([]domain.BiomarkerSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approved(func(sub domain.BiomarkerSubmission) bool {
		return sub.AthleteID == athleteID
	}), nil
}

// ListApprovedByLeague implements domain.SubmissionStore.
func (s *Store) ListApprovedByLeague(_ context.Context, leagueID, seasonID string) ([]domain.BiomarkerSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approved(func(sub domain.BiomarkerSubmission) bool {
		if sub.LeagueID != leagueID {
			return false
		}
		return seasonID == "" || sub.SeasonID == seasonID
	}), nil
}

// ListApprovedBySeason implements domain.SubmissionStore.
func (s *Store) ListApprovedBySeason(_ context.Context, seasonID string) ([]domain.BiomarkerSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approved(func(sub domain.BiomarkerSubmission) bool {
		return sub.SeasonID == seasonID
	}), nil
}

func (s *Store) approved(match func(domain.BiomarkerSubmission) bool) []domain.BiomarkerSubmission {
	out := make([]domain.BiomarkerSubmission, 0)
	for _, sub := range s.submissions {
		if sub.Status == domain.SubmissionApproved && match(sub) {
			out = append(out, sub)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// FindLeague implements domain.LeagueStore.
func (s *Store) FindLeague(_ context.Context, leagueID string) (*domain.League, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	league, ok := s.leagues[leagueID]
	if !ok {
		return nil, nil
	}
	return &league, nil
}

// ListLeagueIDs implements domain.LeagueStore.
func (s *Store) ListLeagueIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.leagues))
	for id := range s.leagues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListMemberships implements domain.LeagueStore.
func (s *Store) ListMemberships(_ context.Context, athleteID string) ([]domain.LeagueMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LeagueMembership, 0)
	for _, members := range s.memberships {
		for _, m := range members {
			if m.AthleteID == athleteID {
				out = append(out, m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeagueID < out[j].LeagueID })
	return out, nil
}

// ListMembers implements domain.LeagueStore.
func (s *Store) ListMembers(_ context.Context, leagueID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.memberships[leagueID]
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.AthleteID)
	}
	return out, nil
}

// CountMembers implements domain.LeagueStore.
func (s *Store) CountMembers(_ context.Context, leagueID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.memberships[leagueID]), nil
}

// LatestAthleteStanding implements domain.LeaderboardStore.
func (s *Store) LatestAthleteStanding(_ context.Context, athleteID string) (*domain.AthleteStanding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.AthleteStanding
	for k := range s.athleteStandings {
		standing := s.athleteStandings[k]
		if standing.AthleteID != athleteID {
			continue
		}
		if latest == nil || standing.UpdatedAt.After(latest.UpdatedAt) {
			copied := standing
			latest = &copied
		}
	}
	return latest, nil
}

// ListLeagueStandings implements domain.LeaderboardStore.
func (s *Store) ListLeagueStandings(_ context.Context, seasonID string) ([]domain.LeagueStanding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LeagueStanding, 0)
	for _, standing := range s.leagueStandings {
		if standing.SeasonID == seasonID {
			out = append(out, standing)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeagueID < out[j].LeagueID })
	return out, nil
}

// UpsertLeagueStanding implements domain.LeaderboardStore. Rank fields
// are preserved from any existing row; only rank passes touch them.
func (s *Store) UpsertLeagueStanding(_ context.Context, standing domain.LeagueStanding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(standing.LeagueID, standing.SeasonID)
	if existing, ok := s.leagueStandings[k]; ok {
		standing.Rank = existing.Rank
		standing.PreviousRank = existing.PreviousRank
	}
	s.leagueStandings[k] = standing
	return nil
}

// DeleteLeagueStanding implements domain.LeaderboardStore.
func (s *Store) DeleteLeagueStanding(_ context.Context, leagueID, seasonID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leagueStandings, key(leagueID, seasonID))
	return nil
}

// ApplyLeagueRanks implements domain.LeaderboardStore. The whole batch
// is validated before any row changes so a bad assignment leaves the
// board untouched.
func (s *Store) ApplyLeagueRanks(_ context.Context, seasonID string, ranks []domain.RankAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, assignment := range ranks {
		if _, ok := s.leagueStandings[key(assignment.EntityID, seasonID)]; !ok {
			return domain.ErrStandingNotFound
		}
	}
	for _, assignment := range ranks {
		k := key(assignment.EntityID, seasonID)
		standing := s.leagueStandings[k]
		standing.PreviousRank = standing.Rank
		standing.Rank = assignment.Rank
		s.leagueStandings[k] = standing
	}
	return nil
}

// ReplaceAthleteStandings implements domain.LeaderboardStore.
func (s *Store) ReplaceAthleteStandings(_ context.Context, seasonID string, standings []domain.AthleteStanding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]struct{}, len(standings))
	for _, standing := range standings {
		keep[standing.AthleteID] = struct{}{}
	}
	for k, existing := range s.athleteStandings {
		if existing.SeasonID != seasonID {
			continue
		}
		if _, ok := keep[existing.AthleteID]; !ok {
			delete(s.athleteStandings, k)
		}
	}

	for _, standing := range standings {
		k := key(standing.AthleteID, seasonID)
		if existing, ok := s.athleteStandings[k]; ok {
			standing.PreviousRank = existing.Rank
		}
		s.athleteStandings[k] = standing
	}
	return nil
}

// BadgeCatalog implements domain.BadgeStore.
func (s *Store) BadgeCatalog(_ context.Context) ([]domain.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Badge, 0, len(s.badges))
	for _, badge := range s.badges {
		out = append(out, badge)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// AwardedSlugs implements domain.BadgeStore.
func (s *Store) AwardedSlugs(_ context.Context, athleteID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for slug := range s.awards[athleteID] {
		out[slug] = struct{}{}
	}
	return out, nil
}

// InsertAwardIfAbsent implements domain.BadgeStore.
func (s *Store) InsertAwardIfAbsent(_ context.Context, athleteID, badgeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	badge, ok := s.badges[badgeID]
	if !ok {
		return false, nil
	}
	byAthlete := s.awards[athleteID]
	if byAthlete == nil {
		byAthlete = make(map[string]string)
		s.awards[athleteID] = byAthlete
	}
	if _, exists := byAthlete[badge.Slug]; exists {
		return false, nil
	}
	byAthlete[badge.Slug] = badgeID
	return true, nil
}

// AppendActivityEvent implements domain.ActivityLog.
func (s *Store) AppendActivityEvent(_ context.Context, event domain.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// WithSeasonLock implements domain.SeasonLocker with a per-season
// mutex. Serializes passes within this process only; multi-process
// deployments use the Postgres advisory lock instead.
func (s *Store) WithSeasonLock(ctx context.Context, seasonID string, fn func(context.Context) error) error {
	s.lockMu.Lock()
	lock, ok := s.seasonLocks[seasonID]
	if !ok {
		lock = &sync.Mutex{}
		s.seasonLocks[seasonID] = lock
	}
	s.lockMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}
