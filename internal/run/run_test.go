package run

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunCollectsResultsInOrder(t *testing.T) {
	t.Parallel()

	failure := errors.New("unit blew up")
	units := []Unit{
		{Remark: "101", Run: func(context.Context) error { return nil }},
		{Remark: "202", Run: func(context.Context) error { return failure }},
		{Remark: "303", Run: func(context.Context) error { return nil }},
	}

	results := NewCoordinator(units).Run(context.Background())
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, want := range []string{"101", "202", "303"} {
		if results[i].Remark != want {
			t.Errorf("result %d remark %q, want %q", i, results[i].Remark, want)
		}
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("healthy units carry errors")
	}
	if !errors.Is(results[1].Err, failure) {
		t.Errorf("failed unit error = %v", results[1].Err)
	}
}

func TestOneFailureDoesNotStopSiblings(t *testing.T) {
	t.Parallel()

	var finished atomic.Int64
	units := []Unit{
		{Remark: "bad", Run: func(context.Context) error { return errors.New("dead on arrival") }},
		{Remark: "slow", Run: func(ctx context.Context) error {
			select {
			case <-time.After(100 * time.Millisecond):
				finished.Add(1)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
	}

	results := NewCoordinator(units).Run(context.Background())
	if finished.Load() != 1 {
		t.Error("sibling was interrupted by another unit's failure")
	}
	if results[1].Err != nil {
		t.Errorf("slow unit err = %v, want nil", results[1].Err)
	}
}

func TestStopReachesEveryUnit(t *testing.T) {
	t.Parallel()

	const n = 5
	var stopped atomic.Int64
	units := make([]Unit, n)
	for i := range units {
		units[i] = Unit{Remark: "u", Run: func(ctx context.Context) error {
			<-ctx.Done()
			stopped.Add(1)
			return nil
		}}
	}

	c := NewCoordinator(units)
	done := make(chan []Result, 1)
	go func() { done <- c.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	c.Stop()
	c.Stop() // must be idempotent

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if stopped.Load() != n {
		t.Errorf("%d of %d units observed the stop", stopped.Load(), n)
	}
}

func TestSetLimitBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int64
	units := make([]Unit, 8)
	for i := range units {
		units[i] = Unit{Remark: "u", Run: func(context.Context) error {
			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		}}
	}

	c := NewCoordinator(units)
	c.SetLimit(2)
	c.Run(context.Background())
	if peak.Load() > 2 {
		t.Errorf("peak concurrency %d with a limit of 2", peak.Load())
	}
}
