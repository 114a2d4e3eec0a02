package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RequestBudget paces requests against one remote API. It tracks the
// GitHub-style X-RateLimit-* and Retry-After headers and can additionally
// enforce a minimum spacing between requests, which is how crates.io asks
// crawlers to behave.
type RequestBudget struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	now       func() time.Time
	probed    bool
	cooldown  time.Time
	notifyCh  chan struct{}

	interval time.Duration
	next     time.Time
}

type BudgetOption func(*RequestBudget)

// WithMinInterval spaces granted requests at least d apart.
func WithMinInterval(d time.Duration) BudgetOption {
	return func(b *RequestBudget) {
		b.interval = d
	}
}

// WithLimit sets the initial request allowance before any response has been
// observed.
func WithLimit(n int) BudgetOption {
	return func(b *RequestBudget) {
		b.remaining = n
	}
}

func NewRequestBudget(opts ...BudgetOption) *RequestBudget {
	b := &RequestBudget{
		// Unauthenticated GitHub allows 60/h; the first response corrects it.
		remaining: 5000,
		reset:     time.Now().Add(1 * time.Hour),
		now:       time.Now,
		notifyCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RequestBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

func (b *RequestBudget) Acquire(ctx context.Context, n int) error {
	if ctx == nil {
		return fmt.Errorf("Acquire: nil context")
	}
	if n <= 0 {
		return fmt.Errorf("Acquire: n must be > 0 (got %d)", n)
	}
	if b == nil {
		return fmt.Errorf("Acquire: nil RequestBudget")
	}
	if b.now == nil || b.notifyCh == nil {
		return fmt.Errorf("Acquire: RequestBudget not initialized (use NewRequestBudget)")
	}

	for i := 0; i < n; i++ {
		if err := b.acquireOne(ctx); err != nil {
			return err
		}
	}
	return nil
}

// acquireOne grants one request or blocks until the cooldown, pacing
// interval or rate-limit window allows it. A budget change signalled by
// UpdateFromResponse re-evaluates immediately.
func (b *RequestBudget) acquireOne(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.now()
		ch := b.notifyCh

		var until time.Time
		switch {
		case now.Before(b.cooldown):
			until = b.cooldown
		case b.interval > 0 && now.Before(b.next):
			until = b.next
		case b.remaining > 0:
			b.remaining--
			b.grantLocked(now)
			b.mu.Unlock()
			return nil
		case !now.Before(b.reset):
			// The window has passed but no refreshed budget has been seen:
			// allow exactly one probe, then block until UpdateFromResponse.
			if !b.probed {
				b.probed = true
				b.grantLocked(now)
				b.mu.Unlock()
				return nil
			}
		default:
			until = b.reset
		}
		b.mu.Unlock()

		if err := waitUntil(ctx, now, until, ch); err != nil {
			return err
		}
	}
}

func (b *RequestBudget) grantLocked(now time.Time) {
	if b.interval > 0 {
		b.next = now.Add(b.interval)
	}
}

// waitUntil blocks until the deadline (forever when zero), a budget change
// on ch, or ctx ends.
func waitUntil(ctx context.Context, now, until time.Time, ch <-chan struct{}) error {
	if until.IsZero() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
			return nil
		}
	}
	timer := time.NewTimer(max(until.Sub(now), 0))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
	case <-timer.C:
	}
	return nil
}

func (b *RequestBudget) signalLocked() {
	if b.notifyCh == nil {
		b.notifyCh = make(chan struct{})
		return
	}
	close(b.notifyCh)
	b.notifyCh = make(chan struct{})
}

func (b *RequestBudget) UpdateFromResponse(resp *http.Response) {
	if resp == nil || b == nil || b.now == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false

	if seconds, ok := headerInt(resp, "Retry-After"); ok && seconds > 0 {
		until := b.now().Add(time.Duration(seconds) * time.Second)
		if until.After(b.cooldown) {
			b.cooldown = until
			changed = true
		}
	}

	if val, ok := headerInt(resp, "X-RateLimit-Remaining"); ok && val >= 0 && b.remaining != int(val) {
		b.remaining = int(val)
		changed = true
	}

	if val, ok := headerInt(resp, "X-RateLimit-Reset"); ok && val > 0 {
		if newReset := time.Unix(val, 0); !b.reset.Equal(newReset) {
			b.reset = newReset
			changed = true
		}
	}

	if changed {
		b.probed = false
		b.signalLocked()
	}
}

func headerInt(resp *http.Response, name string) (int64, bool) {
	raw := resp.Header.Get(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
