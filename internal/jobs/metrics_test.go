package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("ledger:gl_integrity").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger:gl_integrity").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:gl_integrity", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:gl_integrity", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("ledger:gl_integrity")))
}

func TestDriftAndProvisionCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetDrift(3)
	m.SetDrift(1)
	m.AddProvisions("posted", 2)
	m.AddProvisions("failed", 0)

	require.Equal(t, 1.0, testutil.ToFloat64(m.drift))
	require.Equal(t, 2.0, testutil.ToFloat64(m.provisions.WithLabelValues("posted")))

	var nilMetrics *Metrics
	nilMetrics.SetDrift(5)
	require.NoError(t, nilMetrics.Track("noop").End(nil))
}
