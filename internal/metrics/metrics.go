// Package metrics exposes the Prometheus instrumentation for the
// content-filtering engine, following the registration style used
// throughout the teacher's own metrics package: one struct of collectors,
// constructed and registered together, with every registration error joined
// and returned rather than panicking.
package metrics

import (
	"fmt"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "contentfilter"

// Metrics is the Prometheus-based instrumentation for one engine instance.
type Metrics struct {
	// verdicts counts evaluation entry-point results, labeled by
	// entry-point name and the resulting action.
	verdicts *prometheus.CounterVec

	// ruleHits counts how often each rule produced a match, labeled by
	// rule id.
	ruleHits *prometheus.CounterVec

	// filterCallbackDuration observes how long a single filter callback
	// took, labeled by filter type and callback name.
	filterCallbackDuration *prometheus.HistogramVec

	// reloads counts configuration (re)loads, labeled by outcome.
	reloads *prometheus.CounterVec
}

// New registers the content-filtering metrics in reg under namespace and
// returns a ready-to-use [*Metrics].
func New(namespace string, reg prometheus.Registerer) (m *Metrics, err error) {
	const (
		verdicts               = "verdicts_total"
		ruleHits               = "rule_hits_total"
		filterCallbackDuration = "filter_callback_duration_seconds"
		reloads                = "reloads_total"
	)

	m = &Metrics{
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      verdicts,
			Namespace: namespace,
			Subsystem: subsystem,
			Help:      "The total number of verdicts returned by an evaluation entry point.",
		}, []string{"entry_point", "action"}),
		ruleHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      ruleHits,
			Namespace: namespace,
			Subsystem: subsystem,
			Help:      "The total number of times a rule produced a match.",
		}, []string{"rule_id"}),
		filterCallbackDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:      filterCallbackDuration,
			Namespace: namespace,
			Subsystem: subsystem,
			Help:      "How long a single filter callback took, in seconds.",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
		}, []string{"filter_type", "callback"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      reloads,
			Namespace: namespace,
			Subsystem: subsystem,
			Help:      "The total number of configuration reload attempts.",
		}, []string{"outcome"}),
	}

	var errs []error
	collectors := container.KeyValues[string, prometheus.Collector]{
		{Key: verdicts, Value: m.verdicts},
		{Key: ruleHits, Value: m.ruleHits},
		{Key: filterCallbackDuration, Value: m.filterCallbackDuration},
		{Key: reloads, Value: m.reloads},
	}

	for _, c := range collectors {
		if rerr := reg.Register(c.Value); rerr != nil {
			errs = append(errs, fmt.Errorf("registering metric %q: %w", c.Key, rerr))
		}
	}

	if err = errors.Join(errs...); err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveVerdict records the outcome of one evaluation entry point.
func (m *Metrics) ObserveVerdict(entryPoint, action string) {
	m.verdicts.WithLabelValues(entryPoint, action).Inc()
}

// ObserveRuleHit records that ruleID produced a match.
func (m *Metrics) ObserveRuleHit(ruleID string) {
	m.ruleHits.WithLabelValues(ruleID).Inc()
}

// ObserveFilterCallback records how long a filter callback took.
func (m *Metrics) ObserveFilterCallback(filterType, callback string, seconds float64) {
	m.filterCallbackDuration.WithLabelValues(filterType, callback).Observe(seconds)
}

// ObserveReload records the outcome of one configuration reload attempt.
func (m *Metrics) ObserveReload(outcome string) {
	m.reloads.WithLabelValues(outcome).Inc()
}
