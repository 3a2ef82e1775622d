package maker

import (
	"context"
	"math"
	"strconv"
	"testing"

	"opinion-trader/internal/cfg"
	"opinion-trader/internal/exchange/opinion"
)

func gridConfig() cfg.MakerConfig {
	mc := testConfig()
	mc.Grid = cfg.GridConfig{
		Enabled:         true,
		ProfitSpread:    2.0, // cents
		MinProfitSpread: 0.5,
		Levels:          3,
		LevelSpread:     1.0,
		AmountPerLevel:  10,
		AutoRebalance:   true,
	}
	return mc
}

func TestGridCyclePlacesLadder(t *testing.T) {
	t.Parallel()

	client := &fakeClient{book: testBook(0.50, 0.55)}
	e := testEngine(t, client, gridConfig())

	e.gridCycle(context.Background(), snapshotOf(t, e))
	if len(client.placed) != 3 {
		t.Fatalf("placed %d rungs, want 3", len(client.placed))
	}
	want := []float64{0.50, 0.49, 0.48}
	for i, req := range client.placed {
		if req.Side != opinion.Buy {
			t.Errorf("rung %d side %s, want buy", i, req.Side)
		}
		if req.QuoteAmount != 10 {
			t.Errorf("rung %d amount %v, want 10", i, req.QuoteAmount)
		}
		got := parsePrice(t, req.Price)
		if math.Abs(got-want[i]) > 1e-9 {
			t.Errorf("rung %d price %v, want %v", i, got, want[i])
		}
	}

	// a second cycle with every rung resting adds nothing
	e.gridCycle(context.Background(), snapshotOf(t, e))
	if len(client.placed) != 3 {
		t.Errorf("idle cycle placed more orders: %d", len(client.placed))
	}
}

func TestGridFilledRungArmsSell(t *testing.T) {
	t.Parallel()

	client := &fakeClient{book: testBook(0.50, 0.55)}
	e := testEngine(t, client, gridConfig())

	e.gridCycle(context.Background(), snapshotOf(t, e))
	buyID := e.state.GridBuys[0].ID

	// rung 0 fills: the exchange no longer lists it
	client.removeOpen(buyID)
	open := openMap(client)
	e.gridReconcile(context.Background(), open)

	if e.state.GridBuys[0].active() {
		t.Error("filled rung still tracked as resting")
	}
	if len(e.state.GridLegs) != 1 {
		t.Fatalf("got %d legs, want 1", len(e.state.GridLegs))
	}
	leg := e.state.GridLegs[0]
	if leg.Rung != 0 || leg.EntryPrice != 0.50 {
		t.Errorf("leg %+v, want rung 0 at 0.50", leg)
	}
	if leg.SellOrderID == "" {
		t.Fatal("paired sell not armed")
	}
	if math.Abs(leg.SellPrice-0.52) > 1e-9 {
		t.Errorf("sell price %v, want entry + 2¢ = 0.52", leg.SellPrice)
	}
	if e.state.TotalBuyShares != 20 { // $10 at 0.50
		t.Errorf("buy fill not recorded: %d shares", e.state.TotalBuyShares)
	}
}

func TestGridSellArmedThisPassStaysOpen(t *testing.T) {
	t.Parallel()

	client := &fakeClient{book: testBook(0.50, 0.55)}
	e := testEngine(t, client, gridConfig())

	e.gridCycle(context.Background(), snapshotOf(t, e))

	// rung 0 fills; the open set predates the sell the reconcile will arm
	client.removeOpen(e.state.GridBuys[0].ID)
	stale := openMap(client)
	e.gridReconcile(context.Background(), stale)

	if len(e.state.GridLegs) != 1 {
		t.Fatalf("got %d legs, want the armed leg still tracked", len(e.state.GridLegs))
	}
	if e.state.TotalSellShares != 0 || e.state.RealizedPnL != 0 {
		t.Errorf("sell recorded as filled while still resting: sold=%d pnl=%v",
			e.state.TotalSellShares, e.state.RealizedPnL)
	}

	// next cycle's open set includes the sell; the leg keeps resting
	e.gridReconcile(context.Background(), openMap(client))
	if len(e.state.GridLegs) != 1 || e.state.TotalSellShares != 0 {
		t.Errorf("resting sell lost on a fresh reconcile: legs=%d sold=%d",
			len(e.state.GridLegs), e.state.TotalSellShares)
	}
}

func TestGridRoundTripRealizesAndRebalances(t *testing.T) {
	t.Parallel()

	client := &fakeClient{book: testBook(0.50, 0.55)}
	e := testEngine(t, client, gridConfig())

	snap := snapshotOf(t, e)
	e.gridCycle(context.Background(), snap)

	client.removeOpen(e.state.GridBuys[0].ID)
	e.gridReconcile(context.Background(), openMap(client))
	sellID := e.state.GridLegs[0].SellOrderID

	// the paired sell fills
	client.removeOpen(sellID)
	e.gridReconcile(context.Background(), openMap(client))

	if len(e.state.GridLegs) != 0 {
		t.Fatalf("closed leg still tracked: %+v", e.state.GridLegs)
	}
	// 20 shares bought at 0.50, sold at 0.52
	if math.Abs(e.state.RealizedPnL-0.40) > 1e-9 {
		t.Errorf("realized PnL %v, want 0.40", e.state.RealizedPnL)
	}

	// auto-rebalance frees the rung for a fresh buy
	placedBefore := len(client.placed)
	e.gridCycle(context.Background(), snap)
	if len(client.placed) != placedBefore+1 {
		t.Errorf("freed rung not re-armed: placed %d -> %d", placedBefore, len(client.placed))
	}
}

func TestGridNoRebalanceRetiresRung(t *testing.T) {
	t.Parallel()

	mc := gridConfig()
	mc.Grid.AutoRebalance = false
	client := &fakeClient{book: testBook(0.50, 0.55)}
	e := testEngine(t, client, mc)

	snap := snapshotOf(t, e)
	e.gridCycle(context.Background(), snap)

	client.removeOpen(e.state.GridBuys[0].ID)
	e.gridReconcile(context.Background(), openMap(client))
	client.removeOpen(e.state.GridLegs[0].SellOrderID)
	e.gridReconcile(context.Background(), openMap(client))

	if !e.state.GridDone[0] {
		t.Fatal("completed rung not retired with rebalancing off")
	}
	placedBefore := len(client.placed)
	e.gridCycle(context.Background(), snap)
	if len(client.placed) != placedBefore {
		t.Errorf("retired rung re-armed: placed %d -> %d", placedBefore, len(client.placed))
	}
}

func TestGridSkipsCrossingRungs(t *testing.T) {
	t.Parallel()

	mc := gridConfig()
	client := &fakeClient{book: testBook(0.50, 0.55)}
	e := testEngine(t, client, mc)

	// ask collapses below the top rung anchor
	client.book = testBook(0.44, 0.49)
	e.gridCycle(context.Background(), snapshotOf(t, e))

	for _, req := range client.placed {
		p := parsePrice(t, req.Price)
		if p >= 0.49 {
			t.Errorf("rung at %v would cross the 0.49 ask", p)
		}
	}
}

func openMap(f *fakeClient) map[string]opinion.Order {
	m := make(map[string]opinion.Order, len(f.open))
	for _, o := range f.open {
		m[o.OrderID] = o
	}
	return m
}

func parsePrice(t *testing.T, s string) float64 {
	t.Helper()
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		t.Fatalf("unparseable price %q: %v", s, err)
	}
	return v
}
