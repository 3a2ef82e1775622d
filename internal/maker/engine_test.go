package maker

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"opinion-trader/internal/book"
	"opinion-trader/internal/cfg"
	"opinion-trader/internal/exchange/opinion"
)

// fakeClient scripts the exchange: a fixed book, an open-order list the
// test edits between cycles, and ledgers of what the engine did.
type fakeClient struct {
	book    opinion.RawBook
	bookErr error
	balance float64
	open    []opinion.Order
	openErr error

	placed    []opinion.OrderReq
	placeErr  error
	canceled  []string
	cancelErr error
	nextID    int
}

func (f *fakeClient) PlaceOrder(_ context.Context, o opinion.OrderReq) (opinion.OrderResult, error) {
	if f.placeErr != nil {
		return opinion.OrderResult{}, f.placeErr
	}
	f.nextID++
	id := fmt.Sprintf("o%d", f.nextID)
	f.placed = append(f.placed, o)
	f.open = append(f.open, opinion.Order{OrderID: id})
	return opinion.OrderResult{OrderID: id}, nil
}

func (f *fakeClient) CancelOrder(_ context.Context, orderID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.canceled = append(f.canceled, orderID)
	f.removeOpen(orderID)
	return nil
}

func (f *fakeClient) removeOpen(orderID string) {
	for i, o := range f.open {
		if o.OrderID == orderID {
			f.open = append(f.open[:i], f.open[i+1:]...)
			return
		}
	}
}

func (f *fakeClient) GetOrderbook(context.Context, string) (opinion.RawBook, error) {
	return f.book, f.bookErr
}

func (f *fakeClient) GetBalance(context.Context, string) (float64, error) {
	return f.balance, nil
}

func (f *fakeClient) GetPositions(context.Context, string) ([]opinion.Position, error) {
	return nil, nil
}

func (f *fakeClient) GetOpenOrders(context.Context, string) ([]opinion.Order, error) {
	return f.open, f.openErr
}

func testBook(bid, ask float64) opinion.RawBook {
	return opinion.RawBook{
		TokenID: "tok",
		Bids: []opinion.Level{
			{Price: bid, Size: 1000},
			{Price: bid - 0.01, Size: 1000},
		},
		Asks: []opinion.Level{
			{Price: ask, Size: 1000},
			{Price: ask + 0.01, Size: 1000},
		},
	}
}

func testConfig() cfg.MakerConfig {
	mc := cfg.DefaultMakerConfig()
	mc.MarketID = 7
	mc.TokenID = "tok"
	mc.PriceStep = 1.0 // cents
	mc.MaxPositionAmount = 1000
	mc.OrderAmountMin = 1
	mc.OrderAmountMax = 10
	return mc
}

func testEngine(t *testing.T, client *fakeClient, mc cfg.MakerConfig) *Engine {
	t.Helper()
	e := New(cfg.Account{Remark: "101", EOA: "0xeoa"}, mc, client, nil)
	if err := e.initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	return e
}

func TestRepriceThreshold(t *testing.T) {
	t.Parallel()

	client := &fakeClient{book: testBook(0.50, 0.52)}
	e := testEngine(t, client, testConfig())

	e.state.BuyOrder = Resting{ID: "b1", Price: 0.50, Shares: 20}
	client.open = []opinion.Order{{OrderID: "b1"}}

	// half a step away: hold
	e.manageBuy(context.Background(), 0.505)
	if len(client.canceled) != 0 {
		t.Fatalf("0.5¢ move canceled the order: %v", client.canceled)
	}
	if e.state.BuyOrder.ID != "b1" {
		t.Fatal("resting order replaced without a reprice trigger")
	}

	// two steps away: cancel then replace
	e.manageBuy(context.Background(), 0.52)
	if len(client.canceled) != 1 || client.canceled[0] != "b1" {
		t.Fatalf("canceled %v, want exactly [b1]", client.canceled)
	}
	if len(client.placed) != 1 {
		t.Fatalf("placed %d orders, want 1 replacement", len(client.placed))
	}
	if e.state.BuyOrder.ID == "b1" || e.state.BuyOrder.Price != 0.52 {
		t.Errorf("replacement not tracked: %+v", e.state.BuyOrder)
	}
	if e.state.Phase != PhaseQuoting {
		t.Errorf("phase %v after reprice, want QUOTING", e.state.Phase)
	}
}

func TestRepriceCancelFailureKeepsOldOrder(t *testing.T) {
	t.Parallel()

	client := &fakeClient{book: testBook(0.50, 0.52)}
	e := testEngine(t, client, testConfig())

	e.state.BuyOrder = Resting{ID: "b1", Price: 0.50, Shares: 20}
	client.cancelErr = opinion.ErrUnavailable

	e.manageBuy(context.Background(), 0.52)
	if e.state.BuyOrder.ID != "b1" {
		t.Error("order cleared although the cancel failed")
	}
	if len(client.placed) != 0 {
		t.Error("replacement placed while the old order may still rest")
	}
}

func TestDesiredQuotes(t *testing.T) {
	t.Parallel()

	mc := testConfig()
	mc.MinSpread = 2.0 // cents
	client := &fakeClient{book: testBook(0.50, 0.54)}
	e := testEngine(t, client, mc)

	// wide book: join the touch
	buy, sell := e.desiredQuotes(snapshotOf(t, e))
	if buy != 0.50 || sell != 0.54 {
		t.Errorf("wide book quotes %.3f/%.3f, want 0.50/0.54", buy, sell)
	}

	// tight book: back off around the mid
	client.book = testBook(0.50, 0.51)
	snap := snapshotOf(t, e)
	buy, sell = e.desiredQuotes(snap)
	if math.Abs(buy-(snap.Mid-0.01)) > 1e-9 || math.Abs(sell-(snap.Mid+0.01)) > 1e-9 {
		t.Errorf("tight book quotes %.4f/%.4f, want 1 cent around mid %.4f", buy, sell, snap.Mid)
	}

	// price bounds clamp both sides
	e.cfg.MaxBuyPrice = 45 // cents
	e.cfg.MinSellPrice = 60
	client.book = testBook(0.50, 0.54)
	buy, sell = e.desiredQuotes(snapshotOf(t, e))
	if buy != 0.45 || sell != 0.60 {
		t.Errorf("clamped quotes %.2f/%.2f, want 0.45/0.60", buy, sell)
	}
}

func snapshotOf(t *testing.T, e *Engine) book.Snapshot {
	t.Helper()
	snap, err := e.books.Snapshot(context.Background(), e.cfg.TokenID)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	return snap
}

func TestRiskTripCancelsBothOrdersOnce(t *testing.T) {
	t.Parallel()

	mc := testConfig()
	mc.StopLossAmount = 10
	client := &fakeClient{book: testBook(0.50, 0.52)}
	e := testEngine(t, client, mc)

	e.state.BuyOrder = Resting{ID: "b1", Price: 0.50, Shares: 20}
	e.state.SellOrder = Resting{ID: "s1", Price: 0.52, Shares: 20}
	client.open = []opinion.Order{{OrderID: "b1"}, {OrderID: "s1"}}
	e.state.RealizedPnL = -25

	stopped, err := e.cycle(context.Background())
	if err != nil {
		t.Fatalf("cycle returned %v", err)
	}
	if !stopped {
		t.Fatal("stop-loss breach did not stop the session")
	}
	if e.state.Phase != PhaseStopped {
		t.Errorf("phase %v, want STOPPED", e.state.Phase)
	}
	if len(client.canceled) != 2 {
		t.Fatalf("canceled %v, want both resting orders exactly once", client.canceled)
	}
	seen := map[string]bool{}
	for _, id := range client.canceled {
		if seen[id] {
			t.Errorf("order %s canceled twice", id)
		}
		seen[id] = true
	}
	if !seen["b1"] || !seen["s1"] {
		t.Errorf("canceled %v, want b1 and s1", client.canceled)
	}

	// stop is idempotent
	e.stop("again")
	if len(client.canceled) != 2 {
		t.Errorf("second stop canceled again: %v", client.canceled)
	}
	if e.state.StopReason == "again" {
		t.Error("second stop overwrote the original reason")
	}
}

func TestDetectFillsVanishedOrder(t *testing.T) {
	t.Parallel()

	client := &fakeClient{book: testBook(0.50, 0.52)}
	e := testEngine(t, client, testConfig())

	e.state.BuyOrder = Resting{ID: "b1", Price: 0.50, Shares: 20}
	client.open = nil // gone from the exchange without us canceling

	e.detectFills(context.Background())
	if e.state.BuyOrder.active() {
		t.Error("vanished order still tracked as resting")
	}
	if e.state.TotalBuyShares != 20 {
		t.Errorf("buy shares %d, want the full 20 recorded as filled", e.state.TotalBuyShares)
	}
	if math.Abs(e.state.TotalBuyCost-10) > 1e-9 {
		t.Errorf("buy cost %v, want 10", e.state.TotalBuyCost)
	}
}

func TestDetectFillsPartial(t *testing.T) {
	t.Parallel()

	client := &fakeClient{book: testBook(0.50, 0.52)}
	e := testEngine(t, client, testConfig())

	e.state.SellOrder = Resting{ID: "s1", Price: 0.52, Shares: 100}
	e.state.TotalBuyShares = 100
	e.state.TotalBuyCost = 50
	client.open = []opinion.Order{{OrderID: "s1", FilledShares: 40}}

	e.detectFills(context.Background())
	if e.state.TotalSellShares != 40 {
		t.Fatalf("sell shares %d, want 40", e.state.TotalSellShares)
	}
	if !e.state.SellOrder.active() || e.state.SellOrder.Filled != 40 {
		t.Errorf("partial fill lost tracking: %+v", e.state.SellOrder)
	}

	// no growth, no double counting
	e.detectFills(context.Background())
	if e.state.TotalSellShares != 40 {
		t.Errorf("sell shares %d after repeat check, want still 40", e.state.TotalSellShares)
	}
}

func TestBuyBudgetCaps(t *testing.T) {
	t.Parallel()

	mc := testConfig()
	mc.OrderAmountMax = 50
	mc.MaxPositionAmount = 60
	client := &fakeClient{book: testBook(0.50, 0.52)}
	e := testEngine(t, client, mc)

	if got := e.buyBudget(0.50); got != 50 {
		t.Errorf("unconstrained budget %v, want the $50 order cap", got)
	}

	e.state.TotalBuyCost = 45 // $15 of position headroom left
	if got := e.buyBudget(0.50); math.Abs(got-15) > 1e-9 {
		t.Errorf("budget %v, want the $15 position remainder", got)
	}

	e.state.TotalBuyCost = 100 // over the cap
	if got := e.buyBudget(0.50); got != 0 {
		t.Errorf("budget %v over the cap, want 0", got)
	}
}

func TestBuyBudgetShareCap(t *testing.T) {
	t.Parallel()

	mc := testConfig()
	mc.MaxPositionAmount = 0
	mc.MaxPositionShares = 40
	mc.OrderAmountMax = 100
	client := &fakeClient{book: testBook(0.50, 0.52)}
	e := testEngine(t, client, mc)

	e.state.TotalBuyShares = 30 // 10 shares of headroom at 0.50 = $5
	if got := e.buyBudget(0.50); math.Abs(got-5) > 1e-9 {
		t.Errorf("budget %v, want 5", got)
	}
}

func TestCycleRecoversFromBookFailure(t *testing.T) {
	t.Parallel()

	client := &fakeClient{book: testBook(0.50, 0.52)}
	e := testEngine(t, client, testConfig())

	client.bookErr = opinion.ErrTimeout
	stopped, err := e.cycle(context.Background())
	if stopped || err != nil {
		t.Fatalf("recoverable fetch failure ended the session: stopped=%v err=%v", stopped, err)
	}
	if e.state.Phase == PhaseStopped {
		t.Error("engine stopped on a timeout")
	}
}

func TestCycleTerminalOnCredentialFailure(t *testing.T) {
	t.Parallel()

	client := &fakeClient{book: testBook(0.50, 0.52)}
	e := testEngine(t, client, testConfig())

	client.bookErr = fmt.Errorf("fetch: %w", opinion.ErrCredential)
	_, err := e.cycle(context.Background())
	if err == nil {
		t.Fatal("credential failure must end the unit")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	mc := testConfig()
	mc.CheckInterval = cfg.Duration(10 * time.Millisecond)
	client := &fakeClient{book: testBook(0.50, 0.52)}
	e := New(cfg.Account{Remark: "101", EOA: "0xeoa"}, mc, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v on a clean stop", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not observe the stop signal")
	}
	if e.State().Phase != PhaseStopped {
		t.Errorf("phase %v after stop, want STOPPED", e.State().Phase)
	}
}
