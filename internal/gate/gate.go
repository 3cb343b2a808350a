// Package gate serializes mutating work per conversation inside one process
// and spaces successive sends to the same conversation by a minimum interval.
package gate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/unveil/pkg/logger"
)

type Options struct {
	// MinInterval is the minimum gap between the completion of one task and
	// the start of the next task for the same key.
	MinInterval time.Duration
	// TaskTimeout bounds each admitted task; zero means no bound.
	TaskTimeout time.Duration
	// IdleTTL is how long an idle entry is retained before a sweep may drop
	// it. It is never shorter than MinInterval.
	IdleTTL time.Duration
}

// Gate admits tasks per key in FIFO order, one at a time. Keys are
// independent of each other.
type Gate struct {
	opts Options
	now  func() time.Time

	mu        sync.Mutex
	entries   map[string]*entry
	lastSweep time.Time
}

type entry struct {
	tail     chan struct{} // closed when the most recently admitted task releases
	pending  int
	lastDone time.Time
}

func New(opts Options) *Gate {
	if opts.IdleTTL < opts.MinInterval {
		opts.IdleTTL = opts.MinInterval
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = time.Minute
	}
	return &Gate{opts: opts, now: time.Now, entries: make(map[string]*entry)}
}

// Run waits for every task previously admitted for key to finish, waits out
// the send interval, then runs task. The gate is released on every path,
// including panics in task. If ctx ends while waiting, Run returns ctx.Err()
// without running task and without disturbing the order of later waiters.
func (g *Gate) Run(ctx context.Context, key string, task func(ctx context.Context) error) error {
	e, prev, done := g.admit(key)

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// keep the chain intact: release only after our predecessor does
			go func() {
				<-prev
				g.release(e, done, false)
			}()
			return ctx.Err()
		}
	}

	if wait := g.throttle(e); wait > 0 {
		logger.Debug("gate throttling send", zap.String("key", key), zap.Duration("wait", wait))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			g.release(e, done, false)
			return ctx.Err()
		}
	}

	defer g.release(e, done, true)
	if g.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.TaskTimeout)
		defer cancel()
	}
	return task(ctx)
}

func (g *Gate) admit(key string) (*entry, chan struct{}, chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastSweep) >= g.opts.IdleTTL {
		g.sweepLocked(now)
		g.lastSweep = now
	}

	e, ok := g.entries[key]
	if !ok {
		e = &entry{}
		g.entries[key] = e
	}
	prev := e.tail
	done := make(chan struct{})
	e.tail = done
	e.pending++
	return e, prev, done
}

func (g *Gate) throttle(e *entry) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e.lastDone.IsZero() || g.opts.MinInterval <= 0 {
		return 0
	}
	return g.opts.MinInterval - g.now().Sub(e.lastDone)
}

func (g *Gate) release(e *entry, done chan struct{}, ran bool) {
	g.mu.Lock()
	e.pending--
	if ran {
		e.lastDone = g.now()
	}
	g.mu.Unlock()
	close(done)
}

// Sweep drops entries with no pending work whose last send is older than
// the idle TTL. Run sweeps lazily; Sweep forces a pass.
func (g *Gate) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sweepLocked(g.now())
}

func (g *Gate) sweepLocked(now time.Time) int {
	removed := 0
	for key, e := range g.entries {
		if e.pending == 0 && now.Sub(e.lastDone) >= g.opts.IdleTTL {
			delete(g.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
