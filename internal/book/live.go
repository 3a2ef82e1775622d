package book

import (
	"context"
	"sync"
	"time"

	"opinion-trader/internal/exchange/opinion"
)

// maxPushAge is how old a pushed snapshot may be before Live falls back to
// the REST gateway.
const maxPushAge = 10 * time.Second

type pushed struct {
	snap Snapshot
	ts   time.Time
}

// Live serves the most recent websocket book push per token and falls back
// to REST polling when the stream has gone quiet. Safe for concurrent use;
// one feed goroutine writes, every engine reads.
type Live struct {
	mu       sync.RWMutex
	latest   map[string]pushed
	fallback *Gateway
	levels   int
}

func NewLive(fallback *Gateway, depthLevels int) *Live {
	if depthLevels <= 0 {
		depthLevels = DefaultDepthLevels
	}
	return &Live{
		latest:   make(map[string]pushed),
		fallback: fallback,
		levels:   depthLevels,
	}
}

// Apply records one pushed book.
func (l *Live) Apply(u opinion.BookUpdate) {
	snap := Normalize(u.Book, l.levels)
	l.mu.Lock()
	l.latest[snap.TokenID] = pushed{snap: snap, ts: u.Ts}
	l.mu.Unlock()
}

func (l *Live) Snapshot(ctx context.Context, tokenID string) (Snapshot, error) {
	l.mu.RLock()
	p, ok := l.latest[tokenID]
	l.mu.RUnlock()
	if ok && time.Since(p.ts) <= maxPushAge {
		return p.snap, nil
	}
	return l.fallback.Snapshot(ctx, tokenID)
}
