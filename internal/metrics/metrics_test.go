package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Tick("hedge")
	m.Tick("hedge")
	m.TickFailed("hedge", "snapshot")
	m.ObserveEvaluation("hedge", "forward", 1.002, true)
	m.OrderPlaced("alpha", "NEW")
	m.SetBacklog("hedge", 3, 1, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Ticks.WithLabelValues("hedge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TickFailures.WithLabelValues("hedge", "snapshot")))
	assert.Equal(t, 1.002, testutil.ToFloat64(m.Coefficient.WithLabelValues("hedge", "forward")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BacklogSize.WithLabelValues("hedge", "NEW")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BacklogSize.WithLabelValues("hedge", "PLAN")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Tick("x")
		m.TickFailed("x", "y")
		m.ObserveSnapshot("x", time.Millisecond)
		m.ObserveEvaluation("x", "forward", 1, false)
		m.Rejected("x", "dust")
		m.CyclePlaced("x", "placed")
		m.OrderPlaced("v", "NEW")
		m.OrderFinished("v", "FILLED")
		m.SetBacklog("x", 0, 0, 0)
		m.VenueError("v", "depth")
		m.PollRateLimited("v")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.OrderFinished("beta", "FILLED")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `arb_orders_finished_total{status="FILLED",venue="beta"} 1`)
}
