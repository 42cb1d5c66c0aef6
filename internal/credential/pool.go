// Package credential rotates API keys of one remote service under quota limits.
package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrExhausted is returned when every credential of a pool is cooling down.
var ErrExhausted = errors.New("credential: all credentials cooling down")

// ErrQuota marks a response that signalled a quota or rate limit.
var ErrQuota = errors.New("credential: quota exceeded")

// QuotaError wraps a quota signal with the provider message.
type QuotaError struct {
	Service string
	Message string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota signal: %s", e.Service, e.Message)
}

func (e *QuotaError) Is(target error) bool { return target == ErrQuota }

// Lease is one acquired credential. Index is its position in the pool.
type Lease struct {
	Index int
	Key   string
}

// Label identifies the lease in logs without exposing the key.
func (l Lease) Label() string { return fmt.Sprintf("key#%d", l.Index+1) }

// Pool is an ordered credential list with a shared rotation cursor. The
// cursor only moves when the credential it points at signals a quota.
type Pool struct {
	service  string
	keys     []string
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	cursor    int
	coolUntil []time.Time

	// OnRotate is called after a quota signal with the number of
	// credentials still usable.
	OnRotate func(service string, available int)
}

// NewPool returns a pool for service. A zero cooldown keeps an exhausted
// credential out of rotation until the process restarts.
func NewPool(service string, keys []string, cooldown time.Duration) *Pool {
	return &Pool{
		service:   service,
		keys:      append([]string(nil), keys...),
		cooldown:  cooldown,
		now:       time.Now,
		coolUntil: make([]time.Time, len(keys)),
	}
}

// Service returns the service name.
func (p *Pool) Service() string { return p.service }

// Len returns the number of configured credentials.
func (p *Pool) Len() int { return len(p.keys) }

// Acquire returns the first usable credential at or after the cursor.
func (p *Pool) Acquire() (Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i := range p.keys {
		idx := (p.cursor + i) % len(p.keys)
		if p.usable(idx, now) {
			p.cursor = idx
			return Lease{Index: idx, Key: p.keys[idx]}, nil
		}
	}
	return Lease{}, eris.Wrapf(ErrExhausted, "%s: %d credential(s)", p.service, len(p.keys))
}

// ReportQuota marks the leased credential as exhausted and, when the cursor
// still points at it, advances the cursor. Concurrent reports for the same
// lease advance the cursor once.
func (p *Pool) ReportQuota(l Lease) {
	p.mu.Lock()
	if p.cooldown > 0 {
		p.coolUntil[l.Index] = p.now().Add(p.cooldown)
	} else {
		p.coolUntil[l.Index] = time.Unix(1<<62, 0)
	}
	if p.cursor == l.Index {
		p.cursor = (l.Index + 1) % len(p.keys)
	}
	available := p.availableLocked()
	p.mu.Unlock()

	zap.L().Warn("credential quota signalled; rotating",
		zap.String("component", "credential"),
		zap.String("service", p.service),
		zap.String("credential", l.Label()),
		zap.Int("available", available),
	)
	if p.OnRotate != nil {
		p.OnRotate(p.service, available)
	}
}

// Available returns the number of credentials not cooling down.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.availableLocked()
}

func (p *Pool) availableLocked() int {
	now := p.now()
	n := 0
	for i := range p.keys {
		if p.usable(i, now) {
			n++
		}
	}
	return n
}

func (p *Pool) usable(idx int, now time.Time) bool {
	return !now.Before(p.coolUntil[idx])
}

// Call runs fn with a leased credential. On a quota error the credential is
// rotated out and fn is retried once with the next one.
func Call[T any](ctx context.Context, p *Pool, fn func(ctx context.Context, key string) (T, error)) (T, error) {
	var zero T
	for attempt := 0; attempt < 2; attempt++ {
		lease, err := p.Acquire()
		if err != nil {
			return zero, err
		}
		v, err := fn(ctx, lease.Key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrQuota) {
			return zero, err
		}
		p.ReportQuota(lease)
		if attempt == 1 {
			return zero, err
		}
	}
	return zero, nil
}
