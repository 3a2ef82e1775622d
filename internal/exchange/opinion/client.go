package opinion

import "context"

// Client is the trading surface the engine drives. Implemented by the REST
// client below; tests substitute fakes.
type Client interface {
	PlaceOrder(ctx context.Context, req OrderReq) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderbook(ctx context.Context, tokenID string) (RawBook, error)
	GetBalance(ctx context.Context, address string) (float64, error)
	GetPositions(ctx context.Context, address string) ([]Position, error)
	GetOpenOrders(ctx context.Context, address string) ([]Order, error)
}
