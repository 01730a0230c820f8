package scheduler

import (
	"context"
	"sync"
	"time"

	"ShelterSync/internal/ports"
)

// DefaultInterval is used when no positive interval is configured.
const DefaultInterval = 15 * time.Minute

// Ticker fires a job immediately and then every interval until stopped.
// Jobs run on a single goroutine, so a slow job delays the next tick instead of overlapping it.
type Ticker struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*Ticker)(nil)

// NewTicker builds a scheduler firing every interval.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{interval: interval}
}

// Interval returns the tick period.
func (t *Ticker) Interval() time.Duration {
	return t.interval
}

// Start begins ticking. Calling Start on a running Ticker is a no-op.
func (t *Ticker) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop, t.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		job(time.Now())
		for {
			select {
			case now := <-ticker.C:
				job(now)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine and waits for an in-flight job, bounded by ctx.
func (t *Ticker) Stop(ctx context.Context) error {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
