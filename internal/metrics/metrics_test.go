package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/aigateway/internal/apierr"
)

func TestNewPromRecorderRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPromRecorder(reg)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["gateway_dispatch_requests_total"])
	assert.True(t, names["gateway_dispatch_errors_total"])
	assert.True(t, names["gateway_dispatch_duration_seconds"])
	assert.True(t, names["gateway_active_streams"])
}

func TestObserveDispatchIncrementsRequestCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPromRecorder(reg)

	r.ObserveDispatch("openai", "gpt-4o-mini", false, 10*time.Millisecond, nil)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, float64(1), counterValue(t, families, "gateway_dispatch_requests_total"))
}

func TestObserveDispatchWithErrorIncrementsErrorCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPromRecorder(reg)

	r.ObserveDispatch("openai", "gpt-4o-mini", false, time.Millisecond, apierr.New(apierr.KindRateLimited, "slow down"))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, float64(1), counterValue(t, families, "gateway_dispatch_errors_total"))
}

func TestIncActiveStreamsTracksGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPromRecorder(reg)

	r.IncActiveStreams(1)
	r.IncActiveStreams(1)
	r.IncActiveStreams(-1)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, float64(1), gaugeValue(t, families, "gateway_active_streams"))
}

func TestErrKindDefaultsToUnknown(t *testing.T) {
	assert.Equal(t, "unknown", errKind(assertPlainErr{}))
}

type assertPlainErr struct{}

func (assertPlainErr) Error() string { return "plain" }

func counterValue(t *testing.T, families []*dto.MetricFamily, name string) float64 {
	t.Helper()
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.Metric {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(t *testing.T, families []*dto.MetricFamily, name string) float64 {
	t.Helper()
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.Metric {
			return m.GetGauge().GetValue()
		}
	}
	return 0
}
