// Package observability registers Prometheus metrics for the badge and
// scoring engines.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	badgesAwardedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lwc",
		Subsystem: "badges",
		Name:      "awarded_total",
		Help:      "Number of badges awarded, grouped by category.",
	}, []string{"category"})

	ruleErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lwc",
		Subsystem: "badges",
		Name:      "rule_errors_total",
		Help:      "Number of per-rule evaluation failures, grouped by rule slug.",
	}, []string{"slug"})

	rankPassGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "lwc",
		Subsystem: "scoring",
		Name:      "last_rank_pass_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed rank pass per season.",
	}, []string{"season"})

	refreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lwc",
		Subsystem: "scoring",
		Name:      "season_refresh_duration_seconds",
		Help:      "Duration of full-season score refreshes.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(badgesAwardedCounter, ruleErrorCounter, rankPassGauge, refreshDuration)
}

// RecordBadgeAwarded increments the award counter for a category.
func RecordBadgeAwarded(category string) {
	badgesAwardedCounter.WithLabelValues(category).Inc()
}

// RecordRuleError increments the failure counter for a rule.
func RecordRuleError(slug string) {
	ruleErrorCounter.WithLabelValues(slug).Inc()
}

// RecordRankPass updates the rank-pass watermark for a season.
func RecordRankPass(seasonID string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	rankPassGauge.WithLabelValues(seasonID).Set(float64(ts.Unix()))
}

// ObserveRefresh records the duration of a full-season refresh.
func ObserveRefresh(d time.Duration) {
	refreshDuration.Observe(d.Seconds())
}
