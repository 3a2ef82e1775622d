// Package risk implements the per-cycle protective checks the maker engine
// consults: stop-loss, price-deviation, and depth-collapse guards.
package risk

import (
	"fmt"
	"math"

	"opinion-trader/internal/book"
	"opinion-trader/internal/cfg"
)

// Input is everything a check needs from the engine's session state. The
// guard itself holds no state and never mutates its input.
type Input struct {
	Snapshot     book.Snapshot
	ReferenceMid float64 // mid captured at session start, fractional dollars

	RealizedPnL   float64
	UnrealizedPnL float64
	TotalBuyCost  float64 // denominator for the percent stop

	// Largest depth fall within the configured window, percent per side.
	BidDepthDrop float64
	AskDepthDrop float64
}

// Verdict is the outcome of a risk evaluation. Trip is terminal: the session
// stops and every resting order is canceled. Pause holds quoting for this
// cycle only.
type Verdict struct {
	Trip   bool
	Pause  bool
	Reason string
}

func trip(format string, args ...any) Verdict {
	return Verdict{Trip: true, Reason: fmt.Sprintf(format, args...)}
}

func pause(format string, args ...any) Verdict {
	return Verdict{Pause: true, Reason: fmt.Sprintf(format, args...)}
}

// Check runs every configured guard in severity order. The first trip wins;
// pauses are only reported when nothing trips.
func Check(c cfg.MakerConfig, in Input) Verdict {
	loss := -(in.RealizedPnL + in.UnrealizedPnL)

	if c.StopLossAmount > 0 && loss >= c.StopLossAmount {
		return trip("stop loss: $%.2f lost >= $%.2f limit", loss, c.StopLossAmount)
	}
	if c.StopLossPercent > 0 && in.TotalBuyCost > 0 {
		pct := loss / in.TotalBuyCost * 100
		if pct >= c.StopLossPercent {
			return trip("stop loss: %.1f%% lost >= %.1f%% limit", pct, c.StopLossPercent)
		}
	}
	if c.StopLossPrice > 0 && in.Snapshot.Bid1.Price > 0 &&
		in.Snapshot.Bid1.Price <= c.StopLossPrice/100 {
		return trip("stop loss: bid %.2f¢ at or below %.1f¢ floor",
			in.Snapshot.Bid1.Price*100, c.StopLossPrice)
	}

	if c.MaxPriceDeviation > 0 && in.ReferenceMid > 0 && in.Snapshot.Mid > 0 {
		dev := math.Abs(in.Snapshot.Mid-in.ReferenceMid) * 100
		if dev >= c.MaxPriceDeviation {
			return trip("price deviation %.1f¢ >= %.1f¢ from reference mid",
				dev, c.MaxPriceDeviation)
		}
	}

	if c.DepthDropPercent > 0 {
		if in.BidDepthDrop >= c.DepthDropPercent {
			return trip("bid depth collapsed %.0f%% within window", in.BidDepthDrop)
		}
		if in.AskDepthDrop >= c.DepthDropPercent {
			return trip("ask depth collapsed %.0f%% within window", in.AskDepthDrop)
		}
	}

	if c.MinBookDepth > 0 && c.PauseOnLowDepth {
		if in.Snapshot.BidDepth < c.MinBookDepth {
			return pause("bid depth $%.0f below $%.0f floor", in.Snapshot.BidDepth, c.MinBookDepth)
		}
		if in.Snapshot.AskDepth < c.MinBookDepth {
			return pause("ask depth $%.0f below $%.0f floor", in.Snapshot.AskDepth, c.MinBookDepth)
		}
	}

	return Verdict{}
}
