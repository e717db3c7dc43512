package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chatguard/internal/moderation"
)

// Collector exports moderation activity as prometheus metrics.
type Collector struct {
	decisions  *prometheus.CounterVec
	actions    *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	evaluation prometheus.Histogram
}

var _ moderation.MetricsCollector = (*Collector)(nil)

// New registers the collector's metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatguard_decisions_total",
			Help: "Decisions made, by outcome and rule",
		}, []string{"outcome", "rule"}),
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatguard_actions_total",
			Help: "Moderation actions attempted, by action and result",
		}, []string{"action", "result"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatguard_messages_dropped_total",
			Help: "Messages skipped before evaluation, by reason",
		}, []string{"reason"}),
		evaluation: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatguard_evaluation_seconds",
			Help:    "Time spent evaluating one message",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
	}
}

func (c *Collector) ReportDecision(d moderation.Decision, elapsed time.Duration) {
	rule := d.RuleID
	if rule == "" {
		rule = "none"
	}
	c.decisions.WithLabelValues(d.Outcome.String(), rule).Inc()
	c.evaluation.Observe(elapsed.Seconds())
}

func (c *Collector) ReportAttempt(a moderation.Attempt) {
	result := "ok"
	if !a.OK() {
		result = "error"
	}
	c.actions.WithLabelValues(string(a.Action.Kind), result).Inc()
}

// ReportDropped counts a message that never reached the engine.
func (c *Collector) ReportDropped(reason string) {
	c.dropped.WithLabelValues(reason).Inc()
}
