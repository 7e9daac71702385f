package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-ai/pennywise/internal/metrics"
	"github.com/pennywise-ai/pennywise/pkg/domain"
)

func counterValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metric:
		for _, m := range fam.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCollector_CountsLifecycleEvents(t *testing.T) {
	collector := metrics.NewCollector()
	reg := prometheus.NewRegistry()
	require.NoError(t, collector.Register(reg))

	hooks := collector.Hooks()
	ctx := context.Background()

	hooks.OnStepEnter(ctx, &domain.StepEvent{Step: "classify"})
	hooks.OnStepEnter(ctx, &domain.StepEvent{Step: "classify"})
	hooks.OnCapabilityReturn(ctx, &domain.CapabilityEvent{
		Kind: domain.CapabilityModel, Duration: 120 * time.Millisecond,
	})
	hooks.OnCapabilityReturn(ctx, &domain.CapabilityEvent{
		Kind: domain.CapabilityModel, CacheHit: true,
	})
	hooks.OnCapabilityReturn(ctx, &domain.CapabilityEvent{
		Kind: domain.CapabilityGateway, Failure: domain.FailureRateLimited,
	})
	hooks.OnTurnEnd(ctx, &domain.TurnEvent{Entry: "classify", Steps: 4, Duration: time.Second})
	hooks.OnTurnEnd(ctx, &domain.TurnEvent{Entry: "classify", Err: errors.New("boom")})

	families, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, float64(2), counterValue(t, families,
		"pennywise_steps_entered_total", map[string]string{"step": "classify"}))
	assert.Equal(t, float64(1), counterValue(t, families,
		"pennywise_capability_cache_total", map[string]string{"kind": "language-model", "hit": "true"}))
	assert.Equal(t, float64(1), counterValue(t, families,
		"pennywise_capability_failures_total", map[string]string{"kind": "data-gateway", "failure": "rate_limited"}))
	assert.Equal(t, float64(1), counterValue(t, families,
		"pennywise_turns_total", map[string]string{"entry": "classify", "ok": "true"}))
	assert.Equal(t, float64(1), counterValue(t, families,
		"pennywise_turns_total", map[string]string{"entry": "classify", "ok": "false"}))
}

func TestCollector_RegisterTwiceFails(t *testing.T) {
	collector := metrics.NewCollector()
	reg := prometheus.NewRegistry()
	require.NoError(t, collector.Register(reg))
	assert.Error(t, collector.Register(reg))
}
