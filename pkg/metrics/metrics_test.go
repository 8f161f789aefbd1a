package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics_RegistersOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("rch", reg)

	m.PatientsCreated.Inc()
	m.BroadcastsDropped.WithLabelValues("queue_full").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PatientsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BroadcastsDropped.WithLabelValues("queue_full")))

	// A second set on another registry must not collide.
	assert.NotPanics(t, func() { NewMetrics("rch", prometheus.NewRegistry()) })
}

func TestObserveDB_LabelsByOutcome(t *testing.T) {
	m := NewNop()

	m.ObserveDB("insert", 0.01, nil)
	m.ObserveDB("insert", 0.02, errors.New("timeout"))
	m.ObserveDB("list", 0.01, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseOperations.WithLabelValues("insert", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseOperations.WithLabelValues("insert", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseOperations.WithLabelValues("list", "success")))
}
