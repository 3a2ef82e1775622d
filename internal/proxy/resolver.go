package proxy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// ResolutionError is a per-account failure: the batch keeps loading, only
// this account is left without a proxy wallet.
type ResolutionError struct {
	EOA    string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve proxy for %s: %s", e.EOA, e.Reason)
}

// Resolver looks up proxy wallet addresses on the exchange profile endpoint
// and fills the cache. Safe for concurrent use.
type Resolver struct {
	base     string
	chainID  int
	cache    *Cache
	rest     *resty.Client
	onLookup func()
}

func NewResolver(base string, chainID int, cache *Cache, timeout time.Duration) *Resolver {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second)
	}
	return &Resolver{base: base, chainID: chainID, cache: cache, rest: r}
}

// OnLookup registers a callback fired once per network lookup. Cache hits
// do not fire it.
func (r *Resolver) OnLookup(fn func()) {
	r.onLookup = fn
}

type profileResp struct {
	Errno  int    `json:"errno"`
	Errmsg string `json:"errmsg"`
	Result struct {
		MultiSignedWalletAddress map[string]string `json:"multiSignedWalletAddress"`
	} `json:"result"`
}

// Resolve returns the proxy wallet address for eoa, from cache when present.
// A successful lookup is persisted before returning, so repeated calls for
// the same EOA issue exactly one HTTP request.
func (r *Resolver) Resolve(ctx context.Context, eoa string) (string, error) {
	if addr, ok := r.cache.Get(eoa); ok {
		return addr, nil
	}

	if r.onLookup != nil {
		r.onLookup()
	}
	resp := &profileResp{}
	url := fmt.Sprintf("%s/user/%s/profile", r.base, eoa)
	res, err := r.rest.R().
		SetContext(ctx).
		SetQueryParam("chainId", strconv.Itoa(r.chainID)).
		SetResult(resp).
		Get(url)
	if err != nil {
		return "", &ResolutionError{EOA: eoa, Reason: err.Error()}
	}
	if res.StatusCode() != 200 {
		return "", &ResolutionError{EOA: eoa, Reason: fmt.Sprintf("status %d", res.StatusCode())}
	}
	if resp.Errno != 0 {
		return "", &ResolutionError{EOA: eoa, Reason: fmt.Sprintf("errno=%d %s", resp.Errno, resp.Errmsg)}
	}

	addr := resp.Result.MultiSignedWalletAddress[strconv.Itoa(r.chainID)]
	if addr == "" {
		return "", &ResolutionError{EOA: eoa, Reason: "no proxy wallet for chain"}
	}

	if err := r.cache.Put(eoa, addr); err != nil {
		// Resolution itself succeeded; a cache write failure only costs a
		// repeat lookup next run.
		log.Warn().Err(err).Str("eoa", eoa).Msg("proxy cache write failed")
	}
	return addr, nil
}
