// Package postgres provides pgx-backed persistence for the competition
// core: athletes, the submission ledger, leagues, standings, badges,
// activity events, and the transactional outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cancelei/longevity-world-cup/internal/domain"
)

// Repository implements the domain store contracts on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindAthlete implements domain.AthleteStore. Unknown athletes return
// (nil, nil).
func (r *Repository) FindAthlete(ctx context.Context, athleteID string) (*domain.Athlete, error) {
	const query = `SELECT athlete_id, display_name, verified, chronological_age, created_at
        FROM athletes WHERE athlete_id = $1`

	row := r.pool.QueryRow(ctx, query, athleteID)
	var athlete domain.Athlete
	if err := row.Scan(&athlete.ID, &athlete.DisplayName, &athlete.Verified, &athlete.ChronologicalAge, &athlete.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &athlete, nil
}

const submissionColumns = `submission_id, athlete_id, COALESCE(league_id, ''), season_id,
        pheno_age, age_reduction, pace_of_aging, status, entry_method, submitted_at`

// ListApprovedByAthlete implements domain.SubmissionStore.
func (r *Repository) ListApprovedByAthlete(ctx context.Context, athleteID string) ([]domain.BiomarkerSubmission, error) {
	query := `SELECT ` + submissionColumns + `
        FROM biomarker_submissions
        WHERE athlete_id = $1 AND status = 'approved'
        ORDER BY submitted_at ASC, submission_id ASC`
	return r.listSubmissions(ctx, query, athleteID)
}

// ListApprovedByLeague implements domain.SubmissionStore. An empty
// seasonID matches all seasons.
func (r *Repository) ListApprovedByLeague(ctx context.Context, leagueID, seasonID string) ([]domain.BiomarkerSubmission, error) {
	query := `SELECT ` + submissionColumns + `
        FROM biomarker_submissions
        WHERE league_id = $1 AND status = 'approved' AND ($2 = '' OR season_id = $2)
        ORDER BY submitted_at ASC, submission_id ASC`
	return r.listSubmissions(ctx, query, leagueID, seasonID)
}

// ListApprovedBySeason implements domain.SubmissionStore.
func (r *Repository) ListApprovedBySeason(ctx context.Context, seasonID string) ([]domain.BiomarkerSubmission, error) {
	query := `SELECT ` + submissionColumns + `
        FROM biomarker_submissions
        WHERE season_id = $1 AND status = 'approved'
        ORDER BY submitted_at ASC, submission_id ASC`
	return r.listSubmissions(ctx, query, seasonID)
}

func (r *Repository) listSubmissions(ctx context.Context, query string, args ...any) ([]domain.BiomarkerSubmission, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.BiomarkerSubmission, 0)
	for rows.Next() {
		var sub domain.BiomarkerSubmission
		if err := rows.Scan(&sub.ID, &sub.AthleteID, &sub.LeagueID, &sub.SeasonID,
			&sub.PhenoAge, &sub.AgeReduction, &sub.PaceOfAging, &sub.Status, &sub.EntryMethod, &sub.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// FindLeague implements domain.LeagueStore.
func (r *Repository) FindLeague(ctx context.Context, leagueID string) (*domain.League, error) {
	const query = `SELECT league_id, name, owner_id, tier FROM leagues WHERE league_id = $1`

	row := r.pool.QueryRow(ctx, query, leagueID)
	var league domain.League
	if err := row.Scan(&league.ID, &league.Name, &league.OwnerID, &league.Tier); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &league, nil
}

// ListLeagueIDs implements domain.LeagueStore.
func (r *Repository) ListLeagueIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT league_id FROM leagues ORDER BY league_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListMemberships implements domain.LeagueStore.
func (r *Repository) ListMemberships(ctx context.Context, athleteID string) ([]domain.LeagueMembership, error) {
	const query = `SELECT league_id, athlete_id, role FROM league_memberships
        WHERE athlete_id = $1 ORDER BY league_id`

	rows, err := r.pool.Query(ctx, query, athleteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.LeagueMembership, 0)
	for rows.Next() {
		var m domain.LeagueMembership
		if err := rows.Scan(&m.LeagueID, &m.AthleteID, &m.Role); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListMembers implements domain.LeagueStore.
func (r *Repository) ListMembers(ctx context.Context, leagueID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT athlete_id FROM league_memberships WHERE league_id = $1`, leagueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CountMembers implements domain.LeagueStore.
func (r *Repository) CountMembers(ctx context.Context, leagueID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM league_memberships WHERE league_id = $1`, leagueID).Scan(&count)
	return count, err
}

// LatestAthleteStanding implements domain.LeaderboardStore.
func (r *Repository) LatestAthleteStanding(ctx context.Context, athleteID string) (*domain.AthleteStanding, error) {
	const query = `SELECT athlete_id, season_id, rank, previous_rank, best_reduction, updated_at
        FROM athlete_standings WHERE athlete_id = $1
        ORDER BY updated_at DESC LIMIT 1`

	row := r.pool.QueryRow(ctx, query, athleteID)
	var standing domain.AthleteStanding
	if err := row.Scan(&standing.AthleteID, &standing.SeasonID, &standing.Rank, &standing.PreviousRank, &standing.BestReduction, &standing.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &standing, nil
}

// ListLeagueStandings implements domain.LeaderboardStore.
func (r *Repository) ListLeagueStandings(ctx context.Context, seasonID string) ([]domain.LeagueStanding, error) {
	const query = `SELECT league_id, season_id, rank, previous_rank, score,
        total_members, active_members, best_score, worst_score, updated_at
        FROM league_standings WHERE season_id = $1 ORDER BY league_id`

	rows, err := r.pool.Query(ctx, query, seasonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.LeagueStanding, 0)
	for rows.Next() {
		var s domain.LeagueStanding
		if err := rows.Scan(&s.LeagueID, &s.SeasonID, &s.Rank, &s.PreviousRank, &s.Score,
			&s.TotalMembers, &s.ActiveMembers, &s.BestScore, &s.WorstScore, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertLeagueStanding implements domain.LeaderboardStore. Rank fields
// are untouched here; only ApplyLeagueRanks writes them.
func (r *Repository) UpsertLeagueStanding(ctx context.Context, standing domain.LeagueStanding) error {
	const stmt = `INSERT INTO league_standings
        (league_id, season_id, rank, previous_rank, score, total_members, active_members, best_score, worst_score, updated_at)
        VALUES ($1, $2, 0, 0, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (league_id, season_id) DO UPDATE SET
            score = EXCLUDED.score,
            total_members = EXCLUDED.total_members,
            active_members = EXCLUDED.active_members,
            best_score = EXCLUDED.best_score,
            worst_score = EXCLUDED.worst_score,
            updated_at = EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, stmt,
		standing.LeagueID,
		standing.SeasonID,
		standing.Score,
		standing.TotalMembers,
		standing.ActiveMembers,
		standing.BestScore,
		standing.WorstScore,
		standing.UpdatedAt,
	)
	return err
}

// DeleteLeagueStanding implements domain.LeaderboardStore.
func (r *Repository) DeleteLeagueStanding(ctx context.Context, leagueID, seasonID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM league_standings WHERE league_id = $1 AND season_id = $2`, leagueID, seasonID)
	return err
}

// ApplyLeagueRanks implements domain.LeaderboardStore. All rows update
// in one transaction; a missing row aborts the pass so a season is
// never left half-ranked.
func (r *Repository) ApplyLeagueRanks(ctx context.Context, seasonID string, ranks []domain.RankAssignment) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const stmt = `UPDATE league_standings
        SET previous_rank = rank, rank = $3
        WHERE league_id = $1 AND season_id = $2`

	for _, assignment := range ranks {
		tag, err := tx.Exec(ctx, stmt, assignment.EntityID, seasonID, assignment.Rank)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("league %s season %s: %w", assignment.EntityID, seasonID, domain.ErrStandingNotFound)
		}
	}

	return tx.Commit(ctx)
}

// ReplaceAthleteStandings implements domain.LeaderboardStore in a
// single transaction: stale rows go, surviving rows keep their old
// rank in previous_rank.
func (r *Repository) ReplaceAthleteStandings(ctx context.Context, seasonID string, standings []domain.AthleteStanding) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	athleteIDs := make([]string, 0, len(standings))
	for _, standing := range standings {
		athleteIDs = append(athleteIDs, standing.AthleteID)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM athlete_standings WHERE season_id = $1 AND athlete_id != ALL($2)`,
		seasonID, athleteIDs,
	); err != nil {
		return err
	}

	const stmt = `INSERT INTO athlete_standings
        (athlete_id, season_id, rank, previous_rank, best_reduction, updated_at)
        VALUES ($1, $2, $3, 0, $4, $5)
        ON CONFLICT (athlete_id, season_id) DO UPDATE SET
            previous_rank = athlete_standings.rank,
            rank = EXCLUDED.rank,
            best_reduction = EXCLUDED.best_reduction,
            updated_at = EXCLUDED.updated_at`

	for _, standing := range standings {
		if _, err := tx.Exec(ctx, stmt,
			standing.AthleteID,
			standing.SeasonID,
			standing.Rank,
			standing.BestReduction,
			standing.UpdatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// BadgeCatalog implements domain.BadgeStore.
func (r *Repository) BadgeCatalog(ctx context.Context) ([]domain.Badge, error) {
	rows, err := r.pool.Query(ctx, `SELECT badge_id, slug, category, display_name FROM badges ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Badge, 0)
	for rows.Next() {
		var badge domain.Badge
		if err := rows.Scan(&badge.ID, &badge.Slug, &badge.Category, &badge.Name); err != nil {
			return nil, err
		}
		out = append(out, badge)
	}
	return out, rows.Err()
}

// AwardedSlugs implements domain.BadgeStore.
func (r *Repository) AwardedSlugs(ctx context.Context, athleteID string) (map[string]struct{}, error) {
	const query = `SELECT b.slug FROM athlete_badges ab
        JOIN badges b ON b.badge_id = ab.badge_id
        WHERE ab.athlete_id = $1`

	rows, err := r.pool.Query(ctx, query, athleteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		out[slug] = struct{}{}
	}
	return out, rows.Err()
}

// InsertAwardIfAbsent implements domain.BadgeStore. The (athlete,
// badge) primary key makes the insert race-safe across processes: the
// loser of a concurrent award observes created=false, not an error.
func (r *Repository) InsertAwardIfAbsent(ctx context.Context, athleteID, badgeID string) (bool, error) {
	const stmt = `INSERT INTO athlete_badges (athlete_id, badge_id, awarded_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (athlete_id, badge_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, stmt, athleteID, badgeID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AppendActivityEvent implements domain.ActivityLog. The event row and
// its outbox copy commit together so feed and Kafka never diverge.
func (r *Repository) AppendActivityEvent(ctx context.Context, event domain.ActivityEvent) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO activity_events (event_id, event_type, athlete_id, message, payload, occurred_at)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.Type, nullIfEmpty(event.AthleteID), event.Message, payload, event.OccurredAt,
	); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"event_id":    event.ID,
		"event_type":  event.Type,
		"athlete_id":  event.AthleteID,
		"message":     event.Message,
		"data":        event.Data,
		"occurred_at": event.OccurredAt,
	})
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO outbox (event_type, partition_key, payload) VALUES ($1, $2, $3)`,
		event.Type, event.AthleteID, body,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// WithSeasonLock implements domain.SeasonLocker with a session-scoped
// Postgres advisory lock held on a pinned connection, serializing
// scoring and rank passes per season across all process instances.
func (r *Repository) WithSeasonLock(ctx context.Context, seasonID string, fn func(context.Context) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, seasonID); err != nil {
		return fmt.Errorf("acquire season lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, seasonID)
	}()

	return fn(ctx)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
