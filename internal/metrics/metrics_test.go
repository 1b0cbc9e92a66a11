package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestCountersRecord(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test")
	m.Checkout("committed", 10*time.Millisecond)
	m.Checkout("conflict", time.Millisecond)
	m.Checkout("committed", time.Millisecond)
	m.LedgerOp("credit", "ok")
	m.SequencerFallback()

	require.Equal(t, 2.0, testutil.ToFloat64(m.Checkouts.WithLabelValues("committed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.LedgerOps.WithLabelValues("credit", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SequencerFallbacks))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Checkout("committed", time.Second)
	m.LedgerOp("lock", "ok")
	m.LedgerRetry()
	m.SequencerFallback()
	m.Request("/x", 200, time.Second)
}
