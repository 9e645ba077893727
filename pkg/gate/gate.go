// Package gate bounds how many browser sessions run at the same time.
package gate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultCapacity     = 1
	DefaultPollInterval = 500 * time.Millisecond
	DefaultMaxWait      = 60 * time.Second
)

var log = logrus.StandardLogger().WithField("package", "gate")

// BusyError is returned when a caller waited longer than the configured bound.
// It is never a portal error: callers should retry shortly.
type BusyError struct {
	Waiting int
	Waited  time.Duration
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("server busy: gave up after %s, %d other request(s) waiting", e.Waited, e.Waiting)
}

type Snapshot struct {
	Active   int `json:"active"`
	Waiting  int `json:"waiting"`
	Capacity int `json:"capacity"`
}

type Gate struct {
	sem          *semaphore.Weighted
	capacity     int
	pollInterval time.Duration
	maxWait      time.Duration

	active  atomic.Int64
	waiting atomic.Int64
}

type Option func(*Gate)

func WithCapacity(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.capacity = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.pollInterval = d
		}
	}
}

func WithMaxWait(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.maxWait = d
		}
	}
}

func New(opts ...Option) *Gate {
	g := &Gate{
		capacity:     DefaultCapacity,
		pollInterval: DefaultPollInterval,
		maxWait:      DefaultMaxWait,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.sem = semaphore.NewWeighted(int64(g.capacity))
	return g
}

// Acquire blocks until a slot is free, re-checking every poll interval. It
// returns a *BusyError once the maximum wait is exceeded.
func (g *Gate) Acquire(ctx context.Context) error {
	if g.tryAcquire() {
		return nil
	}

	g.waiting.Add(1)
	defer g.waiting.Add(-1)
	start := time.Now()
	log.Debugf("no free slot, waiting (active=%d, waiting=%d)", g.active.Load(), g.waiting.Load())

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(g.maxWait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if g.tryAcquire() {
				return nil
			}
			return &BusyError{
				Waiting: int(g.waiting.Load()) - 1,
				Waited:  time.Since(start).Round(time.Millisecond),
			}
		case <-ticker.C:
			if g.tryAcquire() {
				log.Debugf("slot acquired after %s", time.Since(start))
				return nil
			}
		}
	}
}

func (g *Gate) tryAcquire() bool {
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.active.Add(1)
	return true
}

// Release frees a slot. Releasing with no active slot is logged and ignored.
func (g *Gate) Release() {
	if g.active.Add(-1) < 0 {
		g.active.Add(1)
		log.Warnf("release called without an active slot")
		return
	}
	g.sem.Release(1)
}

// Run executes fn while holding a slot. The slot is released however fn
// returns, including panics.
func (g *Gate) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}

func (g *Gate) Stats() Snapshot {
	return Snapshot{
		Active:   int(g.active.Load()),
		Waiting:  int(g.waiting.Load()),
		Capacity: g.capacity,
	}
}
