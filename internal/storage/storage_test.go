package storage

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreFillRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	now := time.Now()

	fills := []Fill{
		{Remark: "101", TokenID: "tok", Side: "buy", Price: 0.50, Shares: 20, Amount: 10, Ts: now.Add(-2 * time.Hour)},
		{Remark: "101", TokenID: "tok", Side: "sell", Price: 0.55, Shares: 20, Amount: 11, Ts: now.Add(-time.Hour)},
		{Remark: "202", TokenID: "tok", Side: "buy", Price: 0.40, Shares: 10, Amount: 4, Ts: now.Add(-time.Hour)},
	}
	for _, f := range fills {
		if err := s.StoreFill(f); err != nil {
			t.Fatalf("StoreFill failed: %v", err)
		}
	}

	got, err := s.GetFills("101", now.Add(-3*time.Hour), now)
	if err != nil {
		t.Fatalf("GetFills failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d fills for 101, want 2", len(got))
	}
	if got[0].Side != "buy" || got[1].Side != "sell" {
		t.Errorf("fills out of order: %+v", got)
	}

	// the time range excludes older records
	got, err = s.GetFills("101", now.Add(-90*time.Minute), now)
	if err != nil {
		t.Fatalf("GetFills failed: %v", err)
	}
	if len(got) != 1 || got[0].Side != "sell" {
		t.Errorf("range filter returned %+v", got)
	}
}

func TestGetFillsAllAccounts(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	now := time.Now()
	for _, remark := range []string{"101", "202", "303"} {
		if err := s.StoreFill(Fill{Remark: remark, Side: "buy", Ts: now}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetFills("", now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetFills failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("unfiltered scan returned %d fills, want 3", len(got))
	}
}

func TestStoreSessionRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	now := time.Now()

	sum := SessionSummary{
		Remark:      "101",
		MarketID:    7,
		TokenID:     "tok",
		Start:       now.Add(-time.Hour),
		End:         now,
		BuyCost:     50,
		SellRevenue: 55,
		RealizedPnL: 5,
		StopReason:  "stop signal",
	}
	if err := s.StoreSession(sum); err != nil {
		t.Fatalf("StoreSession failed: %v", err)
	}

	got, err := s.GetSessions("101", now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetSessions failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d sessions, want 1", len(got))
	}
	if got[0].RealizedPnL != 5 || got[0].StopReason != "stop signal" {
		t.Errorf("session round trip lost data: %+v", got[0])
	}
}

func TestRemarkIsolation(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	now := time.Now()
	if err := s.StoreFill(Fill{Remark: "101", Side: "buy", Ts: now}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetFills("999", now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetFills failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("fills leaked across accounts: %+v", got)
	}
}
