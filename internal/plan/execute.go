package plan

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"opinion-trader/internal/exchange/opinion"
)

// OrderRecord is the outcome of one level of a plan. Immutable once created.
type OrderRecord struct {
	Level   int     // 0-based ladder index
	Price   float64 // fractional dollars
	Shares  int64   // sells
	Amount  float64 // buys, dollars
	OrderID string
	Err     error
}

// Summary reports a plan execution. A rejected level neither cancels placed
// levels nor blocks later ones; partial completion is the expected shape.
type Summary struct {
	Succeeded int
	Failed    int
	Records   []OrderRecord
}

// Execute places one limit order per plan level. For buys, total is a quote
// amount in dollars; for sells, total is a share count. Levels whose
// allocation rounds to nothing are skipped without counting as failures.
func Execute(ctx context.Context, client opinion.Client, marketID int64, tokenID string, p Plan, total float64) Summary {
	var sum Summary
	var sharesLeft int64
	if p.Side == opinion.Sell {
		sharesLeft = int64(total)
	}

	for i, price := range p.Prices {
		select {
		case <-ctx.Done():
			return sum
		default:
		}

		rec := OrderRecord{Level: i, Price: price}
		req := opinion.OrderReq{
			MarketID:  marketID,
			TokenID:   tokenID,
			Side:      p.Side,
			OrderType: opinion.Limit,
			Price:     fmt.Sprintf("%.6f", price),
		}

		if p.Side == opinion.Buy {
			rec.Amount = roundCent(p.Ratios[i] * total)
			if rec.Amount <= 0 {
				continue
			}
			req.QuoteAmount = rec.Amount
		} else {
			rec.Shares = int64(p.Ratios[i] * total)
			if i == len(p.Prices)-1 {
				rec.Shares = sharesLeft // remainder lands on the far level
			}
			if rec.Shares <= 0 {
				continue
			}
			sharesLeft -= rec.Shares
			req.Shares = rec.Shares
		}

		res, err := client.PlaceOrder(ctx, req)
		if err != nil {
			rec.Err = err
			sum.Failed++
			log.Warn().Err(err).
				Int("level", i).
				Float64("price", price).
				Str("side", string(p.Side)).
				Msg("plan level failed")
		} else {
			rec.OrderID = res.OrderID
			sum.Succeeded++
		}
		sum.Records = append(sum.Records, rec)
	}
	return sum
}

func roundCent(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
