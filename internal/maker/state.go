// Package maker runs the per-account quoting state machine: it places,
// monitors, reprices and cancels resting orders against a live order book,
// under the protection of the risk guard.
package maker

import "time"

// Phase is the engine lifecycle state. Stopped is terminal for a session;
// restarting requires a fresh engine.
type Phase int

const (
	PhaseInitialized Phase = iota
	PhaseQuoting
	PhaseRepricing
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialized:
		return "INITIALIZED"
	case PhaseQuoting:
		return "QUOTING"
	case PhaseRepricing:
		return "REPRICING"
	default:
		return "STOPPED"
	}
}

// Resting is one of our open orders. Shares is the expected full size;
// Filled is the portion already executed the last time we looked.
type Resting struct {
	ID     string
	Price  float64
	Shares int64
	Filled int64
}

func (r *Resting) active() bool { return r.ID != "" }

func (r *Resting) clear() { *r = Resting{} }

// GridLeg is an open grid position: a filled buy waiting for its paired
// sell one profit-spread above the entry.
type GridLeg struct {
	Rung        int // 0-based ladder rung the entry came from
	EntryPrice  float64
	Shares      int64
	BoughtAt    time.Time
	SellOrderID string
	SellPrice   float64
}

// State is the mutable session state. It is owned exclusively by one engine
// instance; nothing outside the engine's goroutine touches it.
type State struct {
	Phase Phase

	// Reference prices captured at session start, deviation baseline.
	ReferenceMid  float64
	ReferenceBid1 float64
	ReferenceAsk1 float64

	BuyOrder  Resting
	SellOrder Resting

	// Layered sell ladder currently resting, when enabled.
	LayerSells []Resting

	TotalBuyShares   int64
	TotalBuyCost     float64
	TotalSellShares  int64
	TotalSellRevenue float64
	RealizedPnL      float64

	PeakPnL     float64
	MaxDrawdown float64
	BuyTrades   int
	SellTrades  int

	StartTime  time.Time
	EndTime    time.Time
	StopReason string

	// Grid mode ledgers; GridBuys is indexed by rung.
	GridBuys []Resting // resting buy rungs
	GridLegs []GridLeg // filled buys awaiting their paired sell
	GridDone []bool    // rungs retired after a completed round trip
}

// NetShares is the current inventory in the traded token.
func (s *State) NetShares() int64 { return s.TotalBuyShares - s.TotalSellShares }

// AvgBuyPrice is the average entry cost, zero before the first buy fill.
func (s *State) AvgBuyPrice() float64 {
	if s.TotalBuyShares == 0 {
		return 0
	}
	return s.TotalBuyCost / float64(s.TotalBuyShares)
}

// MatchedShares is how much inventory has been bought and sold back.
func (s *State) MatchedShares() int64 {
	if s.TotalSellShares < s.TotalBuyShares {
		return s.TotalSellShares
	}
	return s.TotalBuyShares
}

// Invested is the capital currently deployed, floored at zero.
func (s *State) Invested() float64 {
	inv := s.TotalBuyCost - s.TotalSellRevenue
	if inv < 0 {
		return 0
	}
	return inv
}

// UnrealizedPnL marks open inventory to the given bid.
func (s *State) UnrealizedPnL(bid float64) float64 {
	net := s.NetShares()
	if net <= 0 || bid <= 0 {
		return 0
	}
	return float64(net) * (bid - s.AvgBuyPrice())
}

// recordFill folds one executed trade into the cumulative totals and
// refreshes realized P&L and drawdown tracking.
func (s *State) recordFill(isBuy bool, price float64, shares int64) {
	if shares <= 0 {
		return
	}
	if isBuy {
		s.TotalBuyShares += shares
		s.TotalBuyCost += float64(shares) * price
		s.BuyTrades++
	} else {
		s.TotalSellShares += shares
		s.TotalSellRevenue += float64(shares) * price
		s.SellTrades++
	}

	// Realized P&L: revenue on shares sold back against their average cost.
	if s.TotalBuyShares > 0 {
		matched := s.MatchedShares()
		s.RealizedPnL = s.TotalSellRevenue - float64(matched)*s.AvgBuyPrice()
	}

	if s.RealizedPnL > s.PeakPnL {
		s.PeakPnL = s.RealizedPnL
	}
	if dd := s.PeakPnL - s.RealizedPnL; dd > s.MaxDrawdown {
		s.MaxDrawdown = dd
	}
}
