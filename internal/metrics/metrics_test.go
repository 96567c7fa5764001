package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/notifyhub/notification-relay/internal/domain"
	"github.com/notifyhub/notification-relay/internal/metrics"
	"github.com/notifyhub/notification-relay/internal/queue"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	onSubmitted, onRejected := m.IntakeHooks()
	onSubmitted()
	onSubmitted()
	onRejected("validation")

	onProcessed, onDropped, onStoreError, onRedelivered := m.WorkerHooks()
	onProcessed(domain.StatusSuccess, 10*time.Millisecond)
	onProcessed(domain.StatusFailure, 20*time.Millisecond)
	onProcessed(domain.StatusSuccess, 30*time.Millisecond)
	onDropped()
	onStoreError()
	onRedelivered()
	onRedelivered()

	m.BrokerStateHook()(queue.StateReady)
	m.ForwarderHook()(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Submitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected.WithLabelValues("validation")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Processed.WithLabelValues(string(domain.StatusSuccess))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Processed.WithLabelValues(string(domain.StatusFailure))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Redelivered))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BrokerState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Forwarded.WithLabelValues("dropped")))
}

func TestRegisterStoreSize(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.RegisterStoreSize(reg, func() float64 { return 7 })

	n, err := testutil.GatherAndCount(reg, "status_store_records")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
