package ua

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersAgainstSuppliedRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.transactionsStarted.WithLabelValues("INVITE").Inc()
	m.transactionsFinal.WithLabelValues("INVITE", "200").Inc()
	m.retries.WithLabelValues("REGISTER").Inc()
	m.dialogs.Set(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.transactionsStarted.WithLabelValues("INVITE")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transactionsFinal.WithLabelValues("INVITE", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.retries.WithLabelValues("REGISTER")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.dialogs))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewMetricsIndependentRegistriesDoNotCollide(t *testing.T) {
	regA := prometheus.NewRegistry()
	regB := prometheus.NewRegistry()

	mA := NewMetrics(regA)
	mB := NewMetrics(regB)

	mA.dialogs.Set(1)
	mB.dialogs.Set(5)

	assert.Equal(t, float64(1), testutil.ToFloat64(mA.dialogs))
	assert.Equal(t, float64(5), testutil.ToFloat64(mB.dialogs))
}
