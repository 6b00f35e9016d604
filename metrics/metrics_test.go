package metrics

import (
	"errors"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCall(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveCall("create_question", nil)
	m.ObserveCall("create_question", errors.New("boom"))
	m.ObserveCall("create_question", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CallsTotal.WithLabelValues("create_question", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallsTotal.WithLabelValues("create_question", "failed")))
}

func TestAddAmount(t *testing.T) {
	m := New(prometheus.NewRegistry())
	AddAmount(m.SettledReward, big.NewInt(10))
	AddAmount(m.SettledReward, big.NewInt(0))
	AddAmount(m.SettledReward, nil)
	assert.Equal(t, 10.0, testutil.ToFloat64(m.SettledReward))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.ObserveCall("x", nil) })
}
