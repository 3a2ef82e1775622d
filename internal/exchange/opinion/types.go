package opinion

import "time"

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type OrderType string

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

// Level is one priced row of an order book. Both sides use the same keyed
// shape; the exchange serializes numbers as strings.
type Level struct {
	Price float64 `json:"price,string"`
	Size  float64 `json:"size,string"`
}

// RawBook is the order book exactly as the exchange returns it, with no
// ordering guarantees. Normalization lives in internal/book.
type RawBook struct {
	TokenID string  `json:"tokenId"`
	Bids    []Level `json:"bids"`
	Asks    []Level `json:"asks"`
}

// OrderReq describes one order to submit. Buys are sized by quote amount
// (USD), sells by shares; the unused field is left zero.
type OrderReq struct {
	MarketID    int64     `json:"marketId"`
	TokenID     string    `json:"tokenId"`
	Side        Side      `json:"side"`
	OrderType   OrderType `json:"orderType"`
	Price       string    `json:"price"`
	QuoteAmount float64   `json:"makerAmountInQuoteToken,omitempty"`
	Shares      int64     `json:"makerAmountInBaseToken,omitempty"`
}

type OrderResult struct {
	OrderID string `json:"orderId"`
}

// Order is a resting or historical order as reported by the exchange.
type Order struct {
	OrderID      string    `json:"orderId"`
	MarketID     int64     `json:"marketId"`
	TokenID      string    `json:"tokenId"`
	Side         Side      `json:"side"`
	Price        float64   `json:"price,string"`
	Shares       int64     `json:"shares"`
	FilledShares int64     `json:"filledShares"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"-"`
}

type Position struct {
	MarketID     int64   `json:"marketId"`
	TokenID      string  `json:"tokenId"`
	Shares       int64   `json:"sharesOwned"`
	AvgPrice     float64 `json:"avgPrice,string"`
	Cost         float64 `json:"cost,string"`
	CurrentValue float64 `json:"currentValue,string"`
}
