package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/cancelei/longevity-world-cup/internal/badges"
)

// EventSubmissionApproved is the lifecycle event emitted when a
// reviewer approves a biomarker submission.
const EventSubmissionApproved = "submission.approved"

// ScoreTrigger is the scoring engine surface the handler drives.
type ScoreTrigger interface {
	OnSubmissionApproved(ctx context.Context, athleteID, leagueID, seasonID string) error
}

// BadgeChecker is the badge engine surface the handler drives.
type BadgeChecker interface {
	CheckAndAward(ctx context.Context, athleteID string) (*badges.AwardResult, error)
}

// SubmissionApproved is the payload of an approval event.
type SubmissionApproved struct {
	SubmissionID string `json:"submission_id"`
	AthleteID    string `json:"athlete_id"`
	LeagueID     string `json:"league_id,omitempty"`
	SeasonID     string `json:"season_id"`
}

// ApprovalHandler reacts to submission approvals: league rescore and
// rank pass first, then a full badge evaluation for the athlete.
type ApprovalHandler struct {
	scores ScoreTrigger
	badges BadgeChecker
	logger *log.Logger
}

// NewApprovalHandler constructs an ApprovalHandler.
func NewApprovalHandler(scores ScoreTrigger, badgeEngine BadgeChecker, logger *log.Logger) *ApprovalHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[approval] ", log.LstdFlags)
	}
	return &ApprovalHandler{scores: scores, badges: badgeEngine, logger: logger}
}

// Handle processes one decoded Kafka message. Unknown event types are
// skipped so the processor commits past them.
func (h *ApprovalHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != EventSubmissionApproved {
		return nil
	}

	var event SubmissionApproved
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("decode approval payload: %w", err)
	}
	if event.AthleteID == "" || event.SeasonID == "" {
		return fmt.Errorf("approval event missing athlete or season (submission=%s)", event.SubmissionID)
	}

	if err := h.scores.OnSubmissionApproved(ctx, event.AthleteID, event.LeagueID, event.SeasonID); err != nil {
		return fmt.Errorf("recompute after approval: %w", err)
	}

	result, err := h.badges.CheckAndAward(ctx, event.AthleteID)
	if err != nil {
		return fmt.Errorf("badge evaluation: %w", err)
	}
	for _, ruleErr := range result.Errors {
		h.logger.Printf("rule %s failed for athlete %s: %s", ruleErr.Slug, event.AthleteID, ruleErr.Message)
	}
	if len(result.Awarded) > 0 {
		h.logger.Printf("athlete %s earned %d badge(s): %v", event.AthleteID, len(result.Awarded), result.Awarded)
	}
	return nil
}
