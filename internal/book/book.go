// Package book normalizes raw exchange order books into the stable shape
// the planners and the maker engine consume.
package book

import (
	"context"
	"sort"

	"opinion-trader/internal/exchange/opinion"
)

// DefaultDepthLevels is how many top-of-book rows count toward depth.
const DefaultDepthLevels = 5

// Snapshot is a normalized order book: bids descending, asks ascending,
// depth in dollars over the top rows. Mid and Spread are zero when either
// side is empty.
type Snapshot struct {
	TokenID  string
	Bids     []opinion.Level
	Asks     []opinion.Level
	Bid1     opinion.Level
	Ask1     opinion.Level
	BidDepth float64
	AskDepth float64
	Spread   float64
	Mid      float64
}

// Normalize sorts both sides and computes the derived figures. depthLevels
// <= 0 falls back to DefaultDepthLevels.
func Normalize(raw opinion.RawBook, depthLevels int) Snapshot {
	if depthLevels <= 0 {
		depthLevels = DefaultDepthLevels
	}

	bids := append([]opinion.Level(nil), raw.Bids...)
	asks := append([]opinion.Level(nil), raw.Asks...)
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	s := Snapshot{TokenID: raw.TokenID, Bids: bids, Asks: asks}
	if len(bids) > 0 {
		s.Bid1 = bids[0]
	}
	if len(asks) > 0 {
		s.Ask1 = asks[0]
	}
	s.BidDepth = depthDollars(bids, depthLevels)
	s.AskDepth = depthDollars(asks, depthLevels)
	if s.Bid1.Price > 0 && s.Ask1.Price > 0 {
		s.Spread = s.Ask1.Price - s.Bid1.Price
		s.Mid = (s.Bid1.Price + s.Ask1.Price) / 2
	}
	return s
}

func depthDollars(levels []opinion.Level, n int) float64 {
	if n > len(levels) {
		n = len(levels)
	}
	var d float64
	for _, l := range levels[:n] {
		d += l.Price * l.Size
	}
	return d
}

// PriceAtLevel returns the price at the given depth index (0-based) on the
// given side. When the index is beyond the book and fallback is set, the
// top of that side is returned instead; an empty side yields 0.
func (s Snapshot) PriceAtLevel(side opinion.Side, level int, fallback bool) float64 {
	rows := s.Asks
	if side == opinion.Buy {
		rows = s.Bids
	}
	if len(rows) == 0 {
		return 0
	}
	if level < len(rows) {
		return rows[level].Price
	}
	if fallback {
		return rows[0].Price
	}
	return 0
}

// Liquidity is the result of a depth-sufficiency check.
type Liquidity struct {
	Sufficient bool
	Available  float64
	Required   float64
	Shortage   float64
}

// CheckLiquidity checks whether the opposite side of the book can absorb
// required dollars: a buy consumes ask depth, a sell consumes bid depth.
func (s Snapshot) CheckLiquidity(side opinion.Side, required float64) Liquidity {
	available := s.BidDepth
	if side == opinion.Buy {
		available = s.AskDepth
	}
	shortage := required - available
	if shortage < 0 {
		shortage = 0
	}
	return Liquidity{
		Sufficient: available >= required,
		Available:  available,
		Required:   required,
		Shortage:   shortage,
	}
}

// Source yields the current normalized book for a token. Gateway polls REST;
// Live serves websocket pushes with Gateway as its staleness fallback.
type Source interface {
	Snapshot(ctx context.Context, tokenID string) (Snapshot, error)
}

// Gateway fetches and normalizes order books through an exchange client.
type Gateway struct {
	client      opinion.Client
	depthLevels int
}

func NewGateway(client opinion.Client, depthLevels int) *Gateway {
	if depthLevels <= 0 {
		depthLevels = DefaultDepthLevels
	}
	return &Gateway{client: client, depthLevels: depthLevels}
}

func (g *Gateway) Snapshot(ctx context.Context, tokenID string) (Snapshot, error) {
	raw, err := g.client.GetOrderbook(ctx, tokenID)
	if err != nil {
		return Snapshot{}, err
	}
	return Normalize(raw, g.depthLevels), nil
}
