// Package storage persists trading activity with BoltDB: individual fills
// and end-of-session summaries, keyed for time-range queries per account.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

const (
	fillsBucket    = "fills"
	sessionsBucket = "sessions"
)

// Fill is one executed trade attributed to an account session.
type Fill struct {
	Remark  string    `json:"remark"`
	TokenID string    `json:"tokenId"`
	Side    string    `json:"side"`
	Price   float64   `json:"price"`
	Shares  int64     `json:"shares"`
	Amount  float64   `json:"amount"`
	Ts      time.Time `json:"ts"`
}

// SessionSummary captures a finished maker session for later analysis.
type SessionSummary struct {
	Remark        string    `json:"remark"`
	MarketID      int64     `json:"marketId"`
	TokenID       string    `json:"tokenId"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	BuyShares     int64     `json:"buyShares"`
	BuyCost       float64   `json:"buyCost"`
	SellShares    int64     `json:"sellShares"`
	SellRevenue   float64   `json:"sellRevenue"`
	RealizedPnL   float64   `json:"realizedPnl"`
	MatchedShares int64     `json:"matchedShares"`
	MaxDrawdown   float64   `json:"maxDrawdown"`
	StopReason    string    `json:"stopReason"`
}

// Store wraps the bbolt database. Safe for concurrent use across engines.
type Store struct {
	db *bbolt.DB
}

// Open creates or opens the database under dataPath and ensures buckets.
func Open(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "optrader-data.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(fillsBucket)); err != nil {
			return fmt.Errorf("create fills bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(sessionsBucket)); err != nil {
			return fmt.Errorf("create sessions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StoreFill appends a fill keyed remark_timestamp.
func (s *Store) StoreFill(f Fill) error {
	return s.put(fillsBucket, f.Remark, f.Ts, f)
}

// StoreSession appends a session summary keyed remark_endtime.
func (s *Store) StoreSession(sum SessionSummary) error {
	return s.put(sessionsBucket, sum.Remark, sum.End, sum)
}

func (s *Store) put(bucket, remark string, ts time.Time, v any) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))

		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}

		key := fmt.Sprintf("%s_%d", remark, ts.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// GetFills returns fills for remark within [start, end], oldest first. An
// empty remark scans every account's records.
func (s *Store) GetFills(remark string, start, end time.Time) ([]Fill, error) {
	var fills []Fill
	err := s.scanRange(fillsBucket, remark, start, end, func(data []byte) error {
		var f Fill
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		fills = append(fills, f)
		return nil
	})
	return fills, err
}

// GetSessions returns session summaries for remark within [start, end].
func (s *Store) GetSessions(remark string, start, end time.Time) ([]SessionSummary, error) {
	var sums []SessionSummary
	err := s.scanRange(sessionsBucket, remark, start, end, func(data []byte) error {
		var sum SessionSummary
		if err := json.Unmarshal(data, &sum); err != nil {
			return err
		}
		sums = append(sums, sum)
		return nil
	})
	return sums, err
}

func (s *Store) scanRange(bucket, remark string, start, end time.Time, fn func([]byte) error) error {
	if remark == "" {
		return s.scanAll(bucket, start, end, fn)
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()

		prefix := []byte(remark + "_")
		startKey := []byte(fmt.Sprintf("%s_%d", remark, start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%s_%d", remark, end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			if err := fn(v); err != nil {
				continue // skip malformed records
			}
		}
		return nil
	})
}

// scanAll walks a whole bucket, filtering on the timestamp embedded in each
// key. Keys for different remarks interleave, so a cursor range cannot help.
func (s *Store) scanAll(bucket string, start, end time.Time, fn func([]byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			ts, ok := keyTime(k)
			if !ok || ts.Before(start) || ts.After(end) {
				continue
			}
			if err := fn(v); err != nil {
				continue
			}
		}
		return nil
	})
}

func keyTime(k []byte) (time.Time, bool) {
	i := bytes.LastIndexByte(k, '_')
	if i < 0 {
		return time.Time{}, false
	}
	ns, err := strconv.ParseInt(string(k[i+1:]), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}
