package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInventoryMetrics(reg)
	m.IncTransition("confirmed")
	m.IncTransition("confirmed")
	m.IncTransition("")
	m.IncExpired()
	m.IncInsufficient("reserve")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	confirmed, err := fetchCounterValue(mfs, "reservation_transitions_total", "status", "confirmed")
	require.NoError(t, err)
	assert.Equal(t, 2.0, confirmed)

	unknown, err := fetchCounterValue(mfs, "reservation_transitions_total", "status", "unknown")
	require.NoError(t, err)
	assert.Equal(t, 1.0, unknown)

	expired := findMetricFamily(mfs, "reservations_expired_total")
	require.NotNil(t, expired)
	assert.Equal(t, 1.0, expired.GetMetric()[0].GetCounter().GetValue())

	rejected, err := fetchCounterValue(mfs, "stock_insufficient_total", "operation", "reserve")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rejected)
}

func TestNilRegistererIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		NewInventoryMetrics(nil).IncExpired()
		NewHTTPMetrics(nil).Observe("GET", "/", "200", time.Millisecond)
		var m *InventoryMetrics
		m.IncTransition("pending")
	})
}

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("POST", "/api/inventory/reservations", "201", 20*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum, err := fetchHistogramSum(mfs, "http_request_duration_seconds", "route", "/api/inventory/reservations")
	require.NoError(t, err)
	assert.Greater(t, sum, 0.0)
}

func TestConsumerMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConsumerMetrics(reg)
	m.Inc("order_paid", "processed")
	m.Inc("order_paid", "processed")
	m.Inc("order_paid", "duplicate")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	family := findMetricFamily(mfs, "order_events_consumed_total")
	require.NotNil(t, family)
	assert.Len(t, family.GetMetric(), 2)

	var nilMetrics *ConsumerMetrics
	assert.NotPanics(t, func() { nilMetrics.Inc("x", "y") })
}
