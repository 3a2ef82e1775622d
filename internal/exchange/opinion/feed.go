package opinion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// BookUpdate is one websocket order-book event.
type BookUpdate struct {
	Book RawBook
	Ts   time.Time
}

// Feed streams live order-book snapshots over websocket. On any failure it
// reconnects with exponential backoff; consumers that need fresher data than
// the last update fall back to REST polling.
type Feed struct {
	url string
}

func NewFeed(url string) Feed { return Feed{url: url} }

func (f Feed) Stream(ctx context.Context, tokenIDs []string, updates chan<- BookUpdate, errs chan<- error) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := f.streamOnce(ctx, tokenIDs, updates); err != nil {
				log.Warn().Err(err).Dur("backoff", backoff).Msg("book feed disconnected, reconnecting")
				select {
				case errs <- fmt.Errorf("feed reconnect: %w", err):
				default:
				}
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			backoff = time.Second
		}
	}
}

func (f Feed) streamOnce(ctx context.Context, tokenIDs []string, updates chan<- BookUpdate) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(512 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	sub := struct {
		Op   string   `json:"op"`
		Args []string `json:"args"`
	}{Op: "subscribe_orderbook", Args: tokenIDs}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	// keep-alive pings
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}

		var msg struct {
			Channel string  `json:"channel"`
			Data    RawBook `json:"data"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Debug().Err(err).Msg("unparseable feed message dropped")
			continue
		}
		if msg.Channel != "orderbook" || msg.Data.TokenID == "" {
			continue
		}

		select {
		case updates <- BookUpdate{Book: msg.Data, Ts: time.Now()}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
