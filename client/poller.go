package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Poller re-runs a status check on a fixed cadence with at most one call
// in flight; ticks that land while a call is outstanding are skipped.
type Poller struct {
	interval time.Duration
	fn       func(ctx context.Context)

	busy    atomic.Bool
	skipped atomic.Int64
	wg      sync.WaitGroup
}

func NewPoller(interval time.Duration, fn func(ctx context.Context)) *Poller {
	return &Poller{interval: interval, fn: fn}
}

// Start begins polling until ctx is cancelled. The first call happens
// immediately, not after the first tick.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.tick(ctx)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()
}

// Wait blocks until the polling goroutine has exited. In-flight calls
// launched before cancellation may still be running; they observe the
// cancelled ctx themselves.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// Skipped reports how many ticks were dropped because a call was still
// outstanding.
func (p *Poller) Skipped() int64 {
	return p.skipped.Load()
}

func (p *Poller) tick(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Store(false)
		p.fn(ctx)
	}()
}
