// Package metrics exposes engine lifecycle events as Prometheus series.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// Collector holds the engine metric families. Wire its Hooks() into the
// engine and Register it with a prometheus registry.
type Collector struct {
	turns         *prometheus.CounterVec
	turnDuration  prometheus.Histogram
	turnSteps     prometheus.Histogram
	stepsEntered  *prometheus.CounterVec
	capabilityDur *prometheus.HistogramVec
	cacheHits     *prometheus.CounterVec
	failures      *prometheus.CounterVec
}

// NewCollector creates the metric families under the pennywise namespace.
func NewCollector() *Collector {
	return &Collector{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pennywise",
			Name:      "turns_total",
			Help:      "Completed session turns by outcome.",
		}, []string{"entry", "ok"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pennywise",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of one session turn.",
			Buckets:   prometheus.DefBuckets,
		}),
		turnSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pennywise",
			Name:      "turn_steps",
			Help:      "Steps executed per turn.",
			Buckets:   []float64{1, 2, 4, 6, 10, 15, 20},
		}),
		stepsEntered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pennywise",
			Name:      "steps_entered_total",
			Help:      "Step executions by step name.",
		}, []string{"step"}),
		capabilityDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pennywise",
			Name:      "capability_duration_seconds",
			Help:      "Upstream capability call latency, cache misses only.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pennywise",
			Name:      "capability_cache_total",
			Help:      "Capability calls by cache outcome.",
		}, []string{"kind", "hit"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pennywise",
			Name:      "capability_failures_total",
			Help:      "Capability failures after exhausted retries, by kind.",
		}, []string{"kind", "failure"}),
	}
}

// Register registers every family with reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.turns, c.turnDuration, c.turnSteps, c.stepsEntered,
		c.capabilityDur, c.cacheHits, c.failures,
	} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Hooks returns lifecycle hooks feeding the collector.
func (c *Collector) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(_ context.Context, ev *domain.StepEvent) {
			c.stepsEntered.WithLabelValues(ev.Step).Inc()
		},
		OnCapabilityReturn: func(_ context.Context, ev *domain.CapabilityEvent) {
			kind := string(ev.Kind)
			c.cacheHits.WithLabelValues(kind, strconv.FormatBool(ev.CacheHit)).Inc()
			if !ev.CacheHit {
				c.capabilityDur.WithLabelValues(kind).Observe(ev.Duration.Seconds())
			}
			if ev.Failure != "" {
				c.failures.WithLabelValues(kind, string(ev.Failure)).Inc()
			}
		},
		OnTurnEnd: func(_ context.Context, ev *domain.TurnEvent) {
			c.turns.WithLabelValues(ev.Entry, strconv.FormatBool(ev.Err == nil)).Inc()
			c.turnDuration.Observe(ev.Duration.Seconds())
			c.turnSteps.Observe(float64(ev.Steps))
		},
	}
}
