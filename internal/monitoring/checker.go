package monitoring

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker watches ingestion health while the server is up. An alert is sent
// when it first fires and again only after it has cleared; a stale-funds
// alert also refires when the set of stale funds changes.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	log       *zap.Logger

	mu     sync.Mutex
	active map[AlertType]string
	last   *HealthSnapshot
}

// NewChecker creates a background health checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitorConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
		active:    make(map[AlertType]string),
	}
}

// Interval returns the time between checks.
func (c *Checker) Interval() time.Duration { return c.interval }

// Run checks once immediately, so funds that went stale while the server was
// down are reported at startup, then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("starting ingest health checker",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			c.log.Info("ingest health checker stopped")
			return
		}
		c.Check(ctx)

		select {
		case <-ctx.Done():
			c.log.Info("ingest health checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check collects one snapshot and returns the alerts it triggers. Only
// alerts that were not already active are delivered.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		c.log.Error("collect ingest health", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	fresh := c.track(snap, alerts)

	c.log.Info("ingest health",
		zap.Int("runs", snap.RunsTotal),
		zap.Int("promoted", snap.Promoted),
		zap.Int("rejected", snap.Rejected),
		zap.Int("failed", snap.Failed),
		zap.Float64("fail_rate", snap.FailRate),
		zap.Float64("reject_rate", snap.RejectRate),
		zap.Int("stale_funds", len(snap.StaleFunds)),
		zap.Int("alerts", len(alerts)),
		zap.Int("new_alerts", len(fresh)),
	)

	if len(fresh) > 0 {
		sent := c.alerter.SendAlerts(ctx, fresh)
		c.log.Debug("alerts delivered", zap.Int("sent", sent), zap.Int("new_alerts", len(fresh)))
	}
	return alerts
}

// Last returns the most recent snapshot, or nil before the first check.
func (c *Checker) Last() *HealthSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// track records the active alert set and returns the alerts that are new
// since the previous check.
func (c *Checker) track(snap *HealthSnapshot, alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = snap
	next := make(map[AlertType]string, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		key := ""
		if a.Type == AlertStaleFunds {
			key = strings.Join(snap.StaleFunds, ",")
		}
		next[a.Type] = key
		if prev, ok := c.active[a.Type]; !ok || prev != key {
			fresh = append(fresh, a)
		}
	}
	for t := range c.active {
		if _, ok := next[t]; !ok {
			c.log.Info("alert cleared", zap.String("type", string(t)))
		}
	}
	c.active = next
	return fresh
}
