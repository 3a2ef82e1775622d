package maker

import (
	"context"
	"time"

	"opinion-trader/internal/book"
	"opinion-trader/internal/exchange/opinion"
)

// maxSellPrice is the top of the valid price band for a grid exit.
const maxSellPrice = 0.99

// gridCycle maintains the buy ladder. Rung prices are anchored at the bid
// observed when the session started, so the grid does not chase the market.
func (e *Engine) gridCycle(ctx context.Context, snap book.Snapshot) {
	g := e.cfg.Grid
	if len(e.state.GridBuys) == 0 {
		e.state.GridBuys = make([]Resting, g.Levels)
		e.state.GridDone = make([]bool, g.Levels)
	}

	// Legs whose sell never went out retry here.
	for i := range e.state.GridLegs {
		if e.state.GridLegs[i].SellOrderID == "" {
			e.armGridSell(ctx, &e.state.GridLegs[i])
		}
	}

	for rung := 0; rung < g.Levels; rung++ {
		if e.state.GridDone[rung] || e.state.GridBuys[rung].active() || e.rungHasLeg(rung) {
			continue
		}
		price := e.state.ReferenceBid1 - float64(rung)*g.LevelSpread/100
		if price <= 0 {
			continue
		}
		// A rung at or above the ask would cross instead of resting.
		if snap.Ask1.Price > 0 && price >= snap.Ask1.Price {
			continue
		}
		e.placeGridBuy(ctx, rung, price)
	}
}

func (e *Engine) rungHasLeg(rung int) bool {
	for i := range e.state.GridLegs {
		if e.state.GridLegs[i].Rung == rung {
			return true
		}
	}
	return false
}

func (e *Engine) placeGridBuy(ctx context.Context, rung int, price float64) {
	amount := e.cfg.Grid.AmountPerLevel
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
		e.log.Warn().Err(err).Int("rung", rung).Float64("price", price).Msg("grid buy failed")
		return
	}
	e.countPlaced()
	e.state.GridBuys[rung] = Resting{ID: res.OrderID, Price: price, Shares: int64(amount / price)}
	e.log.Info().Str("order", res.OrderID).Int("rung", rung).Float64("price", price).Msg("grid buy resting")
}

// gridReconcile settles completed leg sells into realized round trips, then
// turns completed buy rungs into new legs, using the same open-orders set the
// plain maker diffs against. The order matters: a sell armed while converting
// a buy is not in the open set yet and must not be mistaken for a fill.
func (e *Engine) gridReconcile(ctx context.Context, open map[string]opinion.Order) {
	kept := e.state.GridLegs[:0]
	for i := range e.state.GridLegs {
		leg := e.state.GridLegs[i]
		if leg.SellOrderID == "" {
			kept = append(kept, leg)
			continue
		}
		if _, ok := open[leg.SellOrderID]; ok {
			kept = append(kept, leg)
			continue
		}
		e.onFill(false, leg.SellPrice, leg.Shares)
		if e.m != nil {
			e.m.GridFills.Inc()
		}
		e.log.Info().
			Int("rung", leg.Rung).
			Float64("entry", leg.EntryPrice).
			Float64("exit", leg.SellPrice).
			Float64("profit", (leg.SellPrice-leg.EntryPrice)*float64(leg.Shares)).
			Msg("grid round trip closed")
		if !e.cfg.Grid.AutoRebalance && leg.Rung < len(e.state.GridDone) {
			e.state.GridDone[leg.Rung] = true
		}
	}
	e.state.GridLegs = kept

	for rung := range e.state.GridBuys {
		r := &e.state.GridBuys[rung]
		if !r.active() {
			continue
		}
		if o, ok := open[r.ID]; ok {
			if o.FilledShares > r.Filled {
				e.onFill(true, r.Price, o.FilledShares-r.Filled)
				r.Filled = o.FilledShares
			}
			continue
		}
		if remaining := r.Shares - r.Filled; remaining > 0 {
			e.onFill(true, r.Price, remaining)
		}
		if e.m != nil {
			e.m.GridFills.Inc()
		}
		leg := GridLeg{
			Rung:       rung,
			EntryPrice: r.Price,
			Shares:     r.Shares,
			BoughtAt:   time.Now(),
		}
		r.clear()
		e.armGridSell(ctx, &leg)
		e.state.GridLegs = append(e.state.GridLegs, leg)
	}
}

// armGridSell places the paired exit one profit-spread above the entry. The
// price is clamped to the top of the band; if the clamp squeezes the spread
// below the configured minimum the leg stays unarmed.
func (e *Engine) armGridSell(ctx context.Context, leg *GridLeg) {
	g := e.cfg.Grid
	sellPrice := leg.EntryPrice + g.ProfitSpread/100
	if sellPrice > maxSellPrice {
		sellPrice = maxSellPrice
	}
	if sellPrice-leg.EntryPrice < g.MinProfitSpread/100 {
		e.log.Warn().
			Int("rung", leg.Rung).
			Float64("entry", leg.EntryPrice).
			Msg("grid exit spread below minimum, leg held unarmed")
		return
	}

	res, err := e.client.PlaceOrder(ctx, opinion.OrderReq{
		MarketID:  e.cfg.MarketID,
		TokenID:   e.cfg.TokenID,
		Side:      opinion.Sell,
		OrderType: opinion.Limit,
		Price:     priceStr(sellPrice),
		Shares:    leg.Shares,
	})
	if err != nil {
		e.countRejected()
		e.log.Warn().Err(err).Int("rung", leg.Rung).Float64("price", sellPrice).Msg("grid sell failed")
		return
	}
	e.countPlaced()
	leg.SellOrderID = res.OrderID
	leg.SellPrice = sellPrice
	e.log.Info().Str("order", res.OrderID).Int("rung", leg.Rung).Float64("price", sellPrice).Msg("grid sell resting")
}
