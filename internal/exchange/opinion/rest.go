package opinion

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 10 * time.Second

// REST talks to the exchange HTTP API on behalf of one account. One client
// per account: the api key and proxy wallet are baked in at construction.
type REST struct {
	apiKey string
	proxy  string // proxy wallet address orders are routed through
	base   string
	rest   *resty.Client
}

func NewREST(apiKey, proxyAddr, base string, timeout time.Duration) *REST {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(defaultTimeout)
	}
	return &REST{apiKey: apiKey, proxy: proxyAddr, base: base, rest: r}
}

// envelope is the wrapper every API response arrives in.
type envelope[T any] struct {
	Errno  int    `json:"errno"`
	Errmsg string `json:"errmsg"`
	Result T      `json:"result"`
}

func (c *REST) req(ctx context.Context) *resty.Request {
	return c.rest.R().
		SetContext(ctx).
		SetHeader("api-key", c.apiKey)
}

func (c *REST) PlaceOrder(ctx context.Context, o OrderReq) (OrderResult, error) {
	resp := &envelope[OrderResult]{}
	body := struct {
		OrderReq
		ProxyWallet string `json:"proxyWallet"`
	}{OrderReq: o, ProxyWallet: c.proxy}

	r, err := c.req(ctx).
		SetBody(body).
		SetResult(resp).
		Post(c.base + "/order/place")
	if err != nil {
		return OrderResult{}, classifyTransport(err)
	}
	if r.StatusCode() == 401 || r.StatusCode() == 403 {
		return OrderResult{}, fmt.Errorf("%w: status %d", ErrCredential, r.StatusCode())
	}
	if r.StatusCode() >= 500 {
		return OrderResult{}, fmt.Errorf("%w: status %d", ErrUnavailable, r.StatusCode())
	}
	if resp.Errno != 0 {
		return OrderResult{}, classifyAPI(resp.Errno, resp.Errmsg)
	}
	// A body resty could not unmarshal leaves the zero envelope, which looks
	// like success. An order id the engine cannot track is a failure.
	if resp.Result.OrderID == "" {
		return OrderResult{}, fmt.Errorf("%w: response carried no order id", ErrUnavailable)
	}
	return resp.Result, nil
}

func (c *REST) CancelOrder(ctx context.Context, orderID string) error {
	resp := &envelope[struct{}]{}
	r, err := c.req(ctx).
		SetBody(map[string]string{"orderId": orderID}).
		SetResult(resp).
		Post(c.base + "/order/cancel")
	if err != nil {
		return classifyTransport(err)
	}
	if r.StatusCode() >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, r.StatusCode())
	}
	if resp.Errno != 0 {
		return classifyAPI(resp.Errno, resp.Errmsg)
	}
	return nil
}

func (c *REST) GetOrderbook(ctx context.Context, tokenID string) (RawBook, error) {
	resp := &envelope[RawBook]{}
	r, err := c.req(ctx).
		SetQueryParam("tokenId", tokenID).
		SetResult(resp).
		Get(c.base + "/token/orderbook")
	if err != nil {
		return RawBook{}, classifyTransport(err)
	}
	if r.StatusCode() != 200 {
		return RawBook{}, fmt.Errorf("%w: status %d", ErrUnavailable, r.StatusCode())
	}
	if resp.Errno != 0 {
		return RawBook{}, classifyAPI(resp.Errno, resp.Errmsg)
	}
	book := resp.Result
	book.TokenID = tokenID
	return book, nil
}

func (c *REST) GetBalance(ctx context.Context, address string) (float64, error) {
	resp := &envelope[struct {
		Balance string `json:"balance"`
	}]{}
	r, err := c.req(ctx).
		SetQueryParam("address", address).
		SetResult(resp).
		Get(c.base + "/user/balance")
	if err != nil {
		return 0, classifyTransport(err)
	}
	if r.StatusCode() == 401 || r.StatusCode() == 403 {
		return 0, fmt.Errorf("%w: status %d", ErrCredential, r.StatusCode())
	}
	if resp.Errno != 0 {
		return 0, classifyAPI(resp.Errno, resp.Errmsg)
	}
	bal, err := strconv.ParseFloat(resp.Result.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", resp.Result.Balance, err)
	}
	return bal, nil
}

func (c *REST) GetPositions(ctx context.Context, address string) ([]Position, error) {
	resp := &envelope[struct {
		List []Position `json:"list"`
	}]{}
	r, err := c.req(ctx).
		SetQueryParam("address", address).
		SetResult(resp).
		Get(c.base + "/user/positions")
	if err != nil {
		return nil, classifyTransport(err)
	}
	if r.StatusCode() != 200 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, r.StatusCode())
	}
	if resp.Errno != 0 {
		return nil, classifyAPI(resp.Errno, resp.Errmsg)
	}
	return resp.Result.List, nil
}

func (c *REST) GetOpenOrders(ctx context.Context, address string) ([]Order, error) {
	resp := &envelope[struct {
		List []Order `json:"list"`
	}]{}
	r, err := c.req(ctx).
		SetQueryParam("address", address).
		SetQueryParam("status", "open").
		SetResult(resp).
		Get(c.base + "/user/orders")
	if err != nil {
		return nil, classifyTransport(err)
	}
	if r.StatusCode() != 200 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, r.StatusCode())
	}
	if resp.Errno != 0 {
		return nil, classifyAPI(resp.Errno, resp.Errmsg)
	}
	return resp.Result.List, nil
}
