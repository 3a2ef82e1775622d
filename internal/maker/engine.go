package maker

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"opinion-trader/internal/book"
	"opinion-trader/internal/cfg"
	"opinion-trader/internal/exchange/opinion"
	"opinion-trader/internal/metrics"
	"opinion-trader/internal/plan"
	"opinion-trader/internal/risk"
	"opinion-trader/internal/storage"
)

// stopTimeout bounds the cleanup calls issued after the run context is
// already canceled.
const stopTimeout = 10 * time.Second

// Engine drives one account's quoting session on one market. All state is
// confined to the goroutine running Run; the only shared collaborators
// (store, metrics) are themselves thread-safe.
type Engine struct {
	account cfg.Account
	cfg     cfg.MakerConfig
	client  opinion.Client
	books   book.Source
	depth   *book.DepthHistory
	m       *metrics.Metrics
	store   *storage.Store
	state   State
	log     zerolog.Logger

	initialBalance float64
	reportedPnL    float64
}

func New(account cfg.Account, mc cfg.MakerConfig, client opinion.Client, m *metrics.Metrics) *Engine {
	return &Engine{
		account: account,
		cfg:     mc,
		client:  client,
		books:   book.NewGateway(client, book.DefaultDepthLevels),
		depth:   book.NewDepthHistory(mc.DepthDropWindow),
		m:       m,
		log: log.With().
			Str("account", account.Remark).
			Int64("market", mc.MarketID).
			Str("token", mc.TokenID).
			Logger(),
	}
}

// SetStore enables fill and session persistence.
func (e *Engine) SetStore(s *storage.Store) { e.store = s }

// SetBookSource swaps the REST poller for another snapshot source, usually
// the websocket-backed live book.
func (e *Engine) SetBookSource(src book.Source) { e.books = src }

// State returns a copy of the session state; for inspection after Run.
func (e *Engine) State() State { return e.state }

// Run executes the session until the context is canceled, a risk guard
// trips, or a terminal error occurs. Recoverable exchange failures cost one
// cycle, never the session.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.initialize(ctx); err != nil {
		return fmt.Errorf("account %s: initialize: %w", e.account.Remark, err)
	}
	if e.m != nil {
		e.m.ActiveSessions.Inc()
		defer e.m.ActiveSessions.Dec()
	}

	ticker := time.NewTicker(e.cfg.CheckInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.stop("stop signal")
			return nil
		case <-ticker.C:
			stopped, err := e.cycle(ctx)
			if err != nil {
				e.stop(err.Error())
				return fmt.Errorf("account %s: %w", e.account.Remark, err)
			}
			if stopped {
				return nil
			}
		}
	}
}

func (e *Engine) initialize(ctx context.Context) error {
	snap, err := e.books.Snapshot(ctx, e.cfg.TokenID)
	if err != nil {
		return err
	}
	if snap.Mid <= 0 {
		return fmt.Errorf("market has no two-sided book")
	}

	e.state = State{
		Phase:         PhaseInitialized,
		ReferenceMid:  snap.Mid,
		ReferenceBid1: snap.Bid1.Price,
		ReferenceAsk1: snap.Ask1.Price,
		StartTime:     time.Now(),
	}

	// Balance backs the percent position cap; without it the cap degrades
	// to the other limits.
	if e.cfg.MaxPositionPercent > 0 {
		bal, err := e.client.GetBalance(ctx, e.account.EOA)
		if err != nil {
			if opinion.Terminal(err) {
				return err
			}
			e.log.Warn().Err(err).Msg("balance unavailable, percent position cap disabled")
		}
		e.initialBalance = bal
	}

	e.state.Phase = PhaseQuoting
	e.log.Info().
		Float64("reference_mid", snap.Mid).
		Msg("maker session started")
	return nil
}

// cycle runs one fetch-evaluate-act iteration. The returned bool reports a
// clean terminal stop (risk trip); the error is reserved for failures that
// must kill this account's unit.
func (e *Engine) cycle(ctx context.Context) (bool, error) {
	start := time.Now()
	defer func() {
		if e.m != nil {
			e.m.CycleDuration.Observe(time.Since(start).Seconds())
		}
	}()

	snap, err := e.books.Snapshot(ctx, e.cfg.TokenID)
	if err != nil {
		if opinion.Terminal(err) {
			return false, err
		}
		e.log.Warn().Err(err).Msg("orderbook fetch failed, retrying next cycle")
		e.countError()
		return false, nil
	}

	e.detectFills(ctx)
	e.depth.Record(snap)
	e.publishPnL()

	bidDrop, askDrop := e.depth.MaxDropPercent()
	verdict := risk.Check(e.cfg, risk.Input{
		Snapshot:      snap,
		ReferenceMid:  e.state.ReferenceMid,
		RealizedPnL:   e.state.RealizedPnL,
		UnrealizedPnL: e.state.UnrealizedPnL(snap.Bid1.Price),
		TotalBuyCost:  e.state.TotalBuyCost,
		BidDepthDrop:  bidDrop,
		AskDepthDrop:  askDrop,
	})
	if verdict.Trip {
		if e.m != nil {
			e.m.RiskTrips.Inc()
		}
		e.stop("risk: " + verdict.Reason)
		return true, nil
	}
	if verdict.Pause {
		e.log.Info().Str("reason", verdict.Reason).Msg("quoting paused this cycle")
		return false, nil
	}

	if e.cfg.Grid.Enabled {
		e.gridCycle(ctx, snap)
	} else {
		e.quoteCycle(ctx, snap)
	}
	return false, nil
}

// desiredQuotes computes where each side wants to rest. A zero return
// disables that side for this cycle.
func (e *Engine) desiredQuotes(snap book.Snapshot) (buy, sell float64) {
	minSpread := e.cfg.MinSpread / 100
	buy = snap.Bid1.Price
	sell = snap.Ask1.Price

	// A book tighter than our minimum spread gets symmetric quotes around
	// the mid instead of joining the touch.
	if snap.Spread < minSpread && snap.Mid > 0 {
		buy = snap.Mid - minSpread/2
		sell = snap.Mid + minSpread/2
	}

	if max := e.cfg.MaxBuyPrice / 100; max > 0 && buy > max {
		buy = max
	}
	if min := e.cfg.MinSellPrice / 100; min > 0 && sell < min {
		sell = min
	}

	if buy <= 0 || buy >= 1 {
		buy = 0
	}
	if sell <= 0 || sell >= 1 || (buy > 0 && sell <= buy) {
		sell = 0
	}
	return buy, sell
}

func (e *Engine) quoteCycle(ctx context.Context, snap book.Snapshot) {
	desiredBuy, desiredSell := e.desiredQuotes(snap)

	e.manageBuy(ctx, desiredBuy)

	if e.cfg.LayeredSell.Enabled {
		e.manageLayeredSell(ctx, snap)
	} else {
		e.manageSell(ctx, desiredSell)
	}
}

// repriceNeeded is the per-side trigger: the desired price has moved at
// least one price step away from the resting order.
func (e *Engine) repriceNeeded(desired, resting float64) bool {
	return math.Abs(desired-resting) >= e.cfg.PriceStep/100
}

func (e *Engine) manageBuy(ctx context.Context, desired float64) {
	r := &e.state.BuyOrder

	if desired <= 0 {
		if r.active() {
			e.cancelResting(ctx, r, "buy side disabled")
		}
		return
	}

	if r.active() {
		if !e.repriceNeeded(desired, r.Price) {
			return
		}
		// Cancel must complete before the replacement goes out; a failed
		// cancel leaves the old order standing and retries next cycle.
		e.state.Phase = PhaseRepricing
		if !e.cancelResting(ctx, r, "reprice buy") {
			e.state.Phase = PhaseQuoting
			return
		}
		if e.m != nil {
			e.m.Reprices.Inc()
		}
	}

	amount := e.buyBudget(desired)
	if amount >= e.cfg.OrderAmountMin {
		e.placeBuy(ctx, desired, amount)
	}
	e.state.Phase = PhaseQuoting
}

func (e *Engine) manageSell(ctx context.Context, desired float64) {
	r := &e.state.SellOrder
	net := e.state.NetShares()

	if desired <= 0 || (net <= 0 && !r.active()) {
		if desired <= 0 && r.active() {
			e.cancelResting(ctx, r, "sell side disabled")
		}
		return
	}

	if r.active() {
		if !e.repriceNeeded(desired, r.Price) {
			return
		}
		e.state.Phase = PhaseRepricing
		if !e.cancelResting(ctx, r, "reprice sell") {
			e.state.Phase = PhaseQuoting
			return
		}
		if e.m != nil {
			e.m.Reprices.Inc()
		}
		net = e.state.NetShares()
	}

	if net > 0 {
		e.placeSell(ctx, desired, net)
	}
	e.state.Phase = PhaseQuoting
}

// manageLayeredSell spreads the whole inventory across the configured ask
// levels. The ladder rests until filled or the session stops; inventory
// acquired later goes out as a fresh ladder once the current one is gone.
func (e *Engine) manageLayeredSell(ctx context.Context, snap book.Snapshot) {
	for _, r := range e.state.LayerSells {
		if r.active() {
			return
		}
	}
	e.state.LayerSells = nil

	net := e.state.NetShares()
	if net <= 0 {
		return
	}

	lc := e.cfg.LayeredSell
	p, err := plan.Build(plan.Request{
		Side:         opinion.Sell,
		PriceMode:    plan.ModeLevels,
		Distribution: plan.Distribution(lc.Distribution),
		Levels:       lc.PriceLevels,
		Book:         &snap,
		Weights:      lc.CustomRatios,
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("layered sell plan rejected")
		return
	}

	sum := plan.Execute(ctx, e.client, e.cfg.MarketID, e.cfg.TokenID, p, float64(net))
	for _, rec := range sum.Records {
		if rec.Err != nil {
			e.countRejected()
			continue
		}
		e.countPlaced()
		e.state.LayerSells = append(e.state.LayerSells, Resting{
			ID:     rec.OrderID,
			Price:  rec.Price,
			Shares: rec.Shares,
		})
	}
	e.log.Info().
		Int("levels", len(p.Prices)).
		Int("placed", sum.Succeeded).
		Int("failed", sum.Failed).
		Int64("shares", net).
		Msg("layered sell ladder placed")
}

// buyBudget caps the next buy so resting exposure never exceeds any
// configured position limit.
func (e *Engine) buyBudget(price float64) float64 {
	amount := e.cfg.OrderAmountMax

	if e.cfg.MaxPositionAmount > 0 {
		if rem := e.cfg.MaxPositionAmount - e.state.Invested(); rem < amount {
			amount = rem
		}
	}
	if e.cfg.MaxPositionShares > 0 {
		remShares := e.cfg.MaxPositionShares - e.state.NetShares()
		if rem := float64(remShares) * price; rem < amount {
			amount = rem
		}
	}
	if e.cfg.MaxPositionPercent > 0 && e.initialBalance > 0 {
		cap := e.initialBalance*e.cfg.MaxPositionPercent/100 - e.state.Invested()
		if cap < amount {
			amount = cap
		}
	}
	if amount < 0 {
		return 0
	}
	return amount
}

func (e *Engine) placeBuy(ctx context.Context, price, amount float64) {
	res, err := e.client.PlaceOrder(ctx, opinion.OrderReq{
		MarketID:    e.cfg.MarketID,
		TokenID:     e.cfg.TokenID,
		Side:        opinion.Buy,
		OrderType:   opinion.Limit,
		Price:       priceStr(price),
		QuoteAmount: amount,
	})
	if err != nil {
		e.countRejected()
		e.log.Warn().Err(err).Float64("price", price).Msg("buy order failed")
		return
	}
	e.countPlaced()
	e.state.BuyOrder = Resting{ID: res.OrderID, Price: price, Shares: int64(amount / price)}
	e.log.Info().Str("order", res.OrderID).Float64("price", price).Float64("amount", amount).Msg("buy resting")
}

func (e *Engine) placeSell(ctx context.Context, price float64, shares int64) {
	res, err := e.client.PlaceOrder(ctx, opinion.OrderReq{
		MarketID:  e.cfg.MarketID,
		TokenID:   e.cfg.TokenID,
		Side:      opinion.Sell,
		OrderType: opinion.Limit,
		Price:     priceStr(price),
		Shares:    shares,
	})
	if err != nil {
		e.countRejected()
		e.log.Warn().Err(err).Float64("price", price).Msg("sell order failed")
		return
	}
	e.countPlaced()
	e.state.SellOrder = Resting{ID: res.OrderID, Price: price, Shares: shares}
	e.log.Info().Str("order", res.OrderID).Float64("price", price).Int64("shares", shares).Msg("sell resting")
}

// cancelResting cancels r and clears the tracking slot. Returns false when
// the cancel failed and the order must be assumed still resting.
func (e *Engine) cancelResting(ctx context.Context, r *Resting, why string) bool {
	if !r.active() {
		return true
	}
	if err := e.client.CancelOrder(ctx, r.ID); err != nil {
		e.log.Warn().Err(err).Str("order", r.ID).Str("why", why).Msg("cancel failed")
		e.countError()
		return false
	}
	if e.m != nil {
		e.m.OrdersCanceled.Inc()
	}
	r.clear()
	return true
}

// detectFills reconciles our tracked orders against the exchange's open
// order list. An order that grew its filled count produced a partial fill;
// one that vanished without us canceling it is treated as fully filled.
func (e *Engine) detectFills(ctx context.Context) {
	if !e.anyResting() {
		return
	}
	orders, err := e.client.GetOpenOrders(ctx, e.account.EOA)
	if err != nil {
		e.log.Warn().Err(err).Msg("open orders unavailable, fill detection skipped")
		e.countError()
		return
	}
	open := make(map[string]opinion.Order, len(orders))
	for _, o := range orders {
		open[o.OrderID] = o
	}

	e.reconcile(&e.state.BuyOrder, true, open)
	e.reconcile(&e.state.SellOrder, false, open)
	for i := range e.state.LayerSells {
		e.reconcile(&e.state.LayerSells[i], false, open)
	}
	e.gridReconcile(ctx, open)
}

func (e *Engine) anyResting() bool {
	if e.state.BuyOrder.active() || e.state.SellOrder.active() {
		return true
	}
	for _, r := range e.state.LayerSells {
		if r.active() {
			return true
		}
	}
	if len(e.state.GridBuys) > 0 || len(e.state.GridLegs) > 0 {
		return true
	}
	return false
}

func (e *Engine) reconcile(r *Resting, isBuy bool, open map[string]opinion.Order) {
	if !r.active() {
		return
	}
	if o, ok := open[r.ID]; ok {
		if o.FilledShares > r.Filled {
			e.onFill(isBuy, r.Price, o.FilledShares-r.Filled)
			r.Filled = o.FilledShares
		}
		return
	}
	if remaining := r.Shares - r.Filled; remaining > 0 {
		e.onFill(isBuy, r.Price, remaining)
	}
	r.clear()
}

func (e *Engine) onFill(isBuy bool, price float64, shares int64) {
	e.state.recordFill(isBuy, price, shares)
	side := string(opinion.Sell)
	if isBuy {
		side = string(opinion.Buy)
	}
	e.log.Info().
		Str("side", side).
		Float64("price", price).
		Int64("shares", shares).
		Float64("realized_pnl", e.state.RealizedPnL).
		Msg("fill")

	if e.store != nil {
		fill := storage.Fill{
			Remark:  e.account.Remark,
			TokenID: e.cfg.TokenID,
			Side:    side,
			Price:   price,
			Shares:  shares,
			Amount:  price * float64(shares),
			Ts:      time.Now(),
		}
		if err := e.store.StoreFill(fill); err != nil {
			e.log.Warn().Err(err).Msg("fill not persisted")
		}
	}
}

func (e *Engine) publishPnL() {
	if e.m == nil {
		return
	}
	if delta := e.state.RealizedPnL - e.reportedPnL; delta != 0 {
		e.m.RealizedPnL.Add(delta)
		e.reportedPnL = e.state.RealizedPnL
	}
}

// stop cancels everything resting exactly once, records the session, and
// makes the phase terminal. Idempotent.
func (e *Engine) stop(reason string) {
	if e.state.Phase == PhaseStopped {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	e.cancelAll(ctx)
	e.state.Phase = PhaseStopped
	e.state.EndTime = time.Now()
	e.state.StopReason = reason
	e.publishPnL()

	e.log.Info().
		Str("reason", reason).
		Float64("realized_pnl", e.state.RealizedPnL).
		Int64("matched_shares", e.state.MatchedShares()).
		Dur("duration", e.state.EndTime.Sub(e.state.StartTime)).
		Msg("maker session stopped")

	if e.store != nil {
		sum := storage.SessionSummary{
			Remark:        e.account.Remark,
			MarketID:      e.cfg.MarketID,
			TokenID:       e.cfg.TokenID,
			Start:         e.state.StartTime,
			End:           e.state.EndTime,
			BuyShares:     e.state.TotalBuyShares,
			BuyCost:       e.state.TotalBuyCost,
			SellShares:    e.state.TotalSellShares,
			SellRevenue:   e.state.TotalSellRevenue,
			RealizedPnL:   e.state.RealizedPnL,
			MatchedShares: e.state.MatchedShares(),
			MaxDrawdown:   e.state.MaxDrawdown,
			StopReason:    reason,
		}
		if err := e.store.StoreSession(sum); err != nil {
			e.log.Warn().Err(err).Msg("session summary not persisted")
		}
	}
}

func (e *Engine) cancelAll(ctx context.Context) {
	e.cancelResting(ctx, &e.state.BuyOrder, "session stop")
	e.cancelResting(ctx, &e.state.SellOrder, "session stop")
	for i := range e.state.LayerSells {
		e.cancelResting(ctx, &e.state.LayerSells[i], "session stop")
	}
	for i := range e.state.GridBuys {
		e.cancelResting(ctx, &e.state.GridBuys[i], "session stop")
	}
	for i := range e.state.GridLegs {
		leg := &e.state.GridLegs[i]
		if leg.SellOrderID == "" {
			continue
		}
		if err := e.client.CancelOrder(ctx, leg.SellOrderID); err != nil {
			e.log.Warn().Err(err).Str("order", leg.SellOrderID).Msg("grid sell cancel failed")
		} else if e.m != nil {
			e.m.OrdersCanceled.Inc()
		}
		leg.SellOrderID = ""
	}
}

func (e *Engine) countPlaced() {
	if e.m != nil {
		e.m.OrdersPlaced.Inc()
	}
}

func (e *Engine) countRejected() {
	if e.m != nil {
		e.m.OrdersRejected.Inc()
	}
}

func (e *Engine) countError() {
	if e.m != nil {
		e.m.ErrorsTotal.Inc()
	}
}

func priceStr(p float64) string {
	return fmt.Sprintf("%.6f", p)
}
