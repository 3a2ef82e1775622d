// Package run fans one execution unit per account out onto goroutines and
// collects their terminal results. Units never observe each other's state;
// the only thing they share is the stop signal.
package run

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Unit is one account's independent execution, either a maker session loop
// or a one-shot plan execution.
type Unit struct {
	Remark string
	Run    func(ctx context.Context) error
}

// Result is a unit's terminal outcome.
type Result struct {
	Remark string
	Err    error
}

// Coordinator runs units concurrently. A unit's failure is recorded, never
// propagated to its siblings; only Stop or the parent context ends the
// others.
type Coordinator struct {
	units []Unit
	limit int

	once sync.Once
	stop chan struct{}
}

func NewCoordinator(units []Unit) *Coordinator {
	return &Coordinator{units: units, stop: make(chan struct{})}
}

// SetLimit caps how many units run at once; <= 0 means no cap.
func (c *Coordinator) SetLimit(n int) { c.limit = n }

// Stop signals every running unit to wind down. Safe to call from any
// goroutine, any number of times, before or during Run.
func (c *Coordinator) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// Run starts every unit and blocks until all have finished. The returned
// slice has one entry per unit, in input order.
func (c *Coordinator) Run(ctx context.Context) []Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	var g errgroup.Group
	if c.limit > 0 {
		g.SetLimit(c.limit)
	}

	results := make([]Result, len(c.units))
	for i, u := range c.units {
		i, u := i, u
		g.Go(func() error {
			log.Info().Str("account", u.Remark).Msg("unit started")
			err := u.Run(ctx)
			results[i] = Result{Remark: u.Remark, Err: err}
			if err != nil {
				log.Error().Err(err).Str("account", u.Remark).Msg("unit failed")
			} else {
				log.Info().Str("account", u.Remark).Msg("unit finished")
			}
			return nil
		})
	}
	g.Wait()
	return results
}
