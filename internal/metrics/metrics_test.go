package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistry(t *testing.T) {
	t.Parallel()

	m := NewWithRegistry(prometheus.NewRegistry())

	m.OrdersPlaced.Inc()
	m.OrdersPlaced.Inc()
	if got := testutil.ToFloat64(m.OrdersPlaced); got != 2 {
		t.Errorf("orders placed = %v, want 2", got)
	}

	m.RealizedPnL.Add(3.5)
	m.RealizedPnL.Add(-1.5)
	if got := testutil.ToFloat64(m.RealizedPnL); got != 2 {
		t.Errorf("realized pnl gauge = %v, want 2", got)
	}

	m.ActiveSessions.Inc()
	m.ActiveSessions.Dec()
	if got := testutil.ToFloat64(m.ActiveSessions); got != 0 {
		t.Errorf("active sessions = %v, want 0", got)
	}
}

func TestIsolatedRegistries(t *testing.T) {
	t.Parallel()

	// two instances on separate registries must not collide
	a := NewWithRegistry(prometheus.NewRegistry())
	b := NewWithRegistry(prometheus.NewRegistry())

	a.RiskTrips.Inc()
	if got := testutil.ToFloat64(b.RiskTrips); got != 0 {
		t.Errorf("counter leaked across registries: %v", got)
	}
}
