package badges

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cancelei/longevity-world-cup/internal/domain"
	"github.com/cancelei/longevity-world-cup/internal/observability"
)

// AwardResult partitions a single evaluation pass over the rule
// catalog. Rule failures never abort the pass; they land in Errors.
type AwardResult struct {
	Awarded     []string
	AlreadyHad  []string
	NotEligible []string
	Errors      []RuleError
}

// RuleError records one rule's failure without affecting the others.
type RuleError struct {
	Slug    string
	Message string
}

// Engine evaluates the badge rule catalog against fresh athlete
// snapshots and idempotently persists newly earned awards. The engine
// is stateless; all reads and writes go through the injected stores.
type Engine struct {
	loader      *domain.Loader
	badges      domain.BadgeStore
	events      domain.ActivityLog
	submissions domain.SubmissionStore
	rules       []Rule
	now         func() time.Time
	logger      *log.Logger
}

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithClock overrides the evaluation clock, for deterministic tests of
// tenure and seasonal rules.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger overrides the logger used for best-effort failures.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRules replaces the rule catalog. Used by tests to inject
// misbehaving rules.
func WithRules(rules []Rule) Option {
	return func(e *Engine) {
		e.rules = rules
	}
}

// NewEngine constructs an Engine over the given stores with the static
// rule catalog.
func NewEngine(loader *domain.Loader, badges domain.BadgeStore, events domain.ActivityLog, submissions domain.SubmissionStore, opts ...Option) *Engine {
	e := &Engine{
		loader:      loader,
		badges:      badges,
		events:      events,
		submissions: submissions,
		rules:       Catalog(),
		now:         time.Now,
		logger:      log.New(log.Writer(), "[badges] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckAndAward evaluates the full catalog for one athlete and persists
// newly earned awards. Safe to call repeatedly: a second pass with no
// state change reports every prior award under AlreadyHad.
func (e *Engine) CheckAndAward(ctx context.Context, athleteID string) (*AwardResult, error) {
	return e.evaluate(ctx, athleteID, "")
}

// CheckCategory evaluates only the rules in the given category.
func (e *Engine) CheckCategory(ctx context.Context, athleteID string, category domain.BadgeCategory) (*AwardResult, error) {
	return e.evaluate(ctx, athleteID, category)
}

// CheckEligibility reports whether the athlete currently satisfies the
// named rule. It performs no writes.
func (e *Engine) CheckEligibility(ctx context.Context, athleteID, slug string) (bool, error) {
	var rule *Rule
	for i := range e.rules {
		if e.rules[i].Slug == slug {
			rule = &e.rules[i]
			break
		}
	}
	if rule == nil {
		return false, fmt.Errorf("unknown badge rule: %s", slug)
	}

	snapshot, err := e.loader.Load(ctx, athleteID)
	if err != nil {
		return false, err
	}
	rc := &RuleContext{BadgeContext: snapshot, Now: e.now(), Store: e.submissions}
	return runRule(ctx, *rule, rc)
}

func (e *Engine) evaluate(ctx context.Context, athleteID string, category domain.BadgeCategory) (*AwardResult, error) {
	snapshot, err := e.loader.Load(ctx, athleteID)
	if err != nil {
		return nil, err
	}

	catalog, err := e.badges.BadgeCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load badge catalog: %w", err)
	}
	bySlug := make(map[string]domain.Badge, len(catalog))
	for _, badge := range catalog {
		bySlug[badge.Slug] = badge
	}

	awarded, err := e.badges.AwardedSlugs(ctx, athleteID)
	if err != nil {
		return nil, fmt.Errorf("load awarded badges: %w", err)
	}

	rc := &RuleContext{BadgeContext: snapshot, Now: e.now(), Store: e.submissions}
	result := &AwardResult{}

	for _, rule := range e.rules {
		if category != "" && rule.Category != category {
			continue
		}
		badge, ok := bySlug[rule.Slug]
		if !ok {
			// Catalog drift: the rule ships ahead of its seed row.
			// Expected during incremental rollout, not an error.
			continue
		}
		if _, has := awarded[rule.Slug]; has {
			result.AlreadyHad = append(result.AlreadyHad, rule.Slug)
			continue
		}

		eligible, err := runRule(ctx, rule, rc)
		if err != nil {
			result.Errors = append(result.Errors, RuleError{Slug: rule.Slug, Message: err.Error()})
			observability.RecordRuleError(rule.Slug)
			continue
		}
		if !eligible {
			result.NotEligible = append(result.NotEligible, rule.Slug)
			continue
		}

		created, err := e.badges.InsertAwardIfAbsent(ctx, athleteID, badge.ID)
		if err != nil {
			result.Errors = append(result.Errors, RuleError{Slug: rule.Slug, Message: err.Error()})
			continue
		}
		if !created {
			// A concurrent pass got there first. The badge is earned
			// either way; treat as success.
			result.AlreadyHad = append(result.AlreadyHad, rule.Slug)
			continue
		}

		result.Awarded = append(result.Awarded, rule.Slug)
		observability.RecordBadgeAwarded(string(rule.Category))
		e.appendAwardEvent(ctx, snapshot.Athlete, badge)
	}

	return result, nil
}

// appendAwardEvent records the feed entry for a new award. The award is
// the primary effect; a failed append is logged and swallowed.
func (e *Engine) appendAwardEvent(ctx context.Context, athlete domain.Athlete, badge domain.Badge) {
	event := domain.ActivityEvent{
		ID:        uuid.NewString(),
		Type:      "badge.awarded",
		AthleteID: athlete.ID,
		Message:   fmt.Sprintf("%s earned the %s badge", athlete.DisplayName, badge.Name),
		Data: map[string]any{
			"slug":     badge.Slug,
			"category": string(badge.Category),
			"name":     badge.Name,
		},
		OccurredAt: e.now(),
	}
	if err := e.events.AppendActivityEvent(ctx, event); err != nil {
		e.logger.Printf("activity event append failed (athlete=%s, badge=%s): %v", athlete.ID, badge.Slug, err)
	}
}

// runRule executes one predicate in isolation, converting panics into
// per-rule errors so a misbehaving rule cannot abort the pass.
func runRule(ctx context.Context, rule Rule, rc *RuleContext) (eligible bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()
	return rule.Eligible(ctx, rc)
}
