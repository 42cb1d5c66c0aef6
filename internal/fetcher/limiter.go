package fetcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PolitenessLimiter enforces a minimum interval between requests to one
// source. A 429 stretches the interval (up to 4x); successes shrink it back
// toward the configured floor, never below it.
type PolitenessLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	floor   rate.Limit
	min     rate.Limit
	current rate.Limit
}

// NewPolitenessLimiter allows one request per interval with no burst.
func NewPolitenessLimiter(interval time.Duration) *PolitenessLimiter {
	lim := rate.Inf
	if interval > 0 {
		lim = rate.Every(interval)
	}
	return &PolitenessLimiter{
		limiter: rate.NewLimiter(lim, 1),
		floor:   lim,
		min:     lim / 4,
		current: lim,
	}
}

// Wait blocks until the next request to the source may be sent.
func (p *PolitenessLimiter) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// OnSuccess moves the rate 20% back toward the configured floor interval.
func (p *PolitenessLimiter) OnSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == p.floor {
		return
	}
	next := p.current * 1.2
	if next > p.floor {
		next = p.floor
	}
	p.current = next
	p.limiter.SetLimit(next)
}

// OnRateLimit halves the rate after a 429.
func (p *PolitenessLimiter) OnRateLimit(source string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.floor == rate.Inf {
		return
	}
	next := p.current * 0.5
	if next < p.min {
		next = p.min
	}
	p.current = next
	p.limiter.SetLimit(next)
	zap.L().Warn("fetcher: throttled, widening request interval",
		zap.String("source", source),
		zap.Duration("interval", p.intervalLocked()),
	)
}

// Interval returns the current minimum spacing between requests.
func (p *PolitenessLimiter) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intervalLocked()
}

func (p *PolitenessLimiter) intervalLocked() time.Duration {
	if p.current == rate.Inf || p.current <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(p.current))
}

// Limiters holds one PolitenessLimiter per source tag. Sources without a
// configured interval share no limiter and are not throttled.
type Limiters struct {
	mu       sync.Mutex
	limiters map[string]*PolitenessLimiter
	interval func(source string) time.Duration
}

// NewLimiters builds a limiter set whose intervals come from interval.
func NewLimiters(interval func(source string) time.Duration) *Limiters {
	return &Limiters{limiters: make(map[string]*PolitenessLimiter), interval: interval}
}

// For returns the limiter for source, creating it on first use.
func (l *Limiters) For(source string) *PolitenessLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[source]
	if !ok {
		var d time.Duration
		if l.interval != nil {
			d = l.interval(source)
		}
		lim = NewPolitenessLimiter(d)
		l.limiters[source] = lim
	}
	return lim
}
