package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cancelei/longevity-world-cup/internal/badges"
)

type approvalCall struct {
	athleteID string
	leagueID  string
	seasonID  string
}

type stubScores struct {
	calls []approvalCall
	err   error
}

func (s *stubScores) OnSubmissionApproved(_ context.Context, athleteID, leagueID, seasonID string) error {
	s.calls = append(s.calls, approvalCall{athleteID: athleteID, leagueID: leagueID, seasonID: seasonID})
	return s.err
}

type stubBadges struct {
	checked []string
	result  *badges.AwardResult
	err     error
}

func (s *stubBadges) CheckAndAward(_ context.Context, athleteID string) (*badges.AwardResult, error) {
	s.checked = append(s.checked, athleteID)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &badges.AwardResult{}, nil
}

func approvalEvent(t *testing.T, event SubmissionApproved) Message {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return Message{EventType: EventSubmissionApproved, Payload: payload}
}

func TestHandleScoresThenAwards(t *testing.T) {
	scores := &stubScores{}
	badgeEngine := &stubBadges{result: &badges.AwardResult{Awarded: []string{"age-bender"}}}
	handler := NewApprovalHandler(scores, badgeEngine, testLogger(t))

	msg := approvalEvent(t, SubmissionApproved{
		SubmissionID: "sub-1",
		AthleteID:    "ath-1",
		LeagueID:     "lg-1",
		SeasonID:     "season-1",
	})
	require.NoError(t, handler.Handle(context.Background(), msg))

	require.Equal(t, []approvalCall{{athleteID: "ath-1", leagueID: "lg-1", seasonID: "season-1"}}, scores.calls)
	require.Equal(t, []string{"ath-1"}, badgeEngine.checked)
}

func TestHandleIgnoresOtherEventTypes(t *testing.T) {
	scores := &stubScores{}
	badgeEngine := &stubBadges{}
	handler := NewApprovalHandler(scores, badgeEngine, testLogger(t))

	msg := Message{EventType: "submission.rejected", Payload: json.RawMessage(`{}`)}
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.Empty(t, scores.calls)
	require.Empty(t, badgeEngine.checked)
}

func TestHandleRejectsIncompleteEvents(t *testing.T) {
	scores := &stubScores{}
	handler := NewApprovalHandler(scores, &stubBadges{}, testLogger(t))

	msg := approvalEvent(t, SubmissionApproved{SubmissionID: "sub-1", SeasonID: "season-1"})
	err := handler.Handle(context.Background(), msg)
	require.Error(t, err)
	require.Empty(t, scores.calls)
}

func TestHandleScoringFailureShortCircuits(t *testing.T) {
	scores := &stubScores{err: errors.New("lock timeout")}
	badgeEngine := &stubBadges{}
	handler := NewApprovalHandler(scores, badgeEngine, testLogger(t))

	msg := approvalEvent(t, SubmissionApproved{AthleteID: "ath-1", SeasonID: "season-1"})
	err := handler.Handle(context.Background(), msg)
	require.ErrorContains(t, err, "lock timeout")
	require.Empty(t, badgeEngine.checked, "badges must not run when scoring failed")
}

func TestHandleBadgeFailurePropagates(t *testing.T) {
	scores := &stubScores{}
	badgeEngine := &stubBadges{err: errors.New("catalog unavailable")}
	handler := NewApprovalHandler(scores, badgeEngine, testLogger(t))

	msg := approvalEvent(t, SubmissionApproved{AthleteID: "ath-1", SeasonID: "season-1"})
	err := handler.Handle(context.Background(), msg)
	require.ErrorContains(t, err, "catalog unavailable")
}

func TestHandleRuleErrorsAreLoggedNotFatal(t *testing.T) {
	scores := &stubScores{}
	badgeEngine := &stubBadges{result: &badges.AwardResult{
		Errors: []badges.RuleError{{Slug: "league-mvp", Message: "query failed"}},
	}}
	handler := NewApprovalHandler(scores, badgeEngine, testLogger(t))

	msg := approvalEvent(t, SubmissionApproved{AthleteID: "ath-1", SeasonID: "season-1"})
	require.NoError(t, handler.Handle(context.Background(), msg))
}
