package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertIngestFailureRate AlertType = "ingest_failure_rate"
	AlertQARejectRate      AlertType = "qa_reject_rate"
	AlertStaleFunds        AlertType = "stale_funds"
)

// minFinished is the number of finished runs below which rates are too noisy to alert on.
const minFinished = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a HealthSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitorConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitorConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *HealthSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()
	finished := snap.Finished()

	if finished >= minFinished && a.cfg.FailureRateThreshold > 0 && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertIngestFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Ingest failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.Failed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Failed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if finished >= minFinished && a.cfg.RejectRateThreshold > 0 && snap.RejectRate > a.cfg.RejectRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertQARejectRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"QA rejection rate %.1f%% exceeds threshold %.1f%% (%d rejected / %d finished in last %dh)",
				snap.RejectRate*100, a.cfg.RejectRateThreshold*100,
				snap.Rejected, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"reject_rate": snap.RejectRate,
				"threshold":   a.cfg.RejectRateThreshold,
				"rejected":    snap.Rejected,
				"finished":    finished,
			},
			Timestamp: now,
		})
	}

	if len(snap.StaleFunds) > a.cfg.MaxStaleFunds {
		alerts = append(alerts, Alert{
			Type:     AlertStaleFunds,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d fund(s) have no snapshot within their freshness window: %s",
				len(snap.StaleFunds), strings.Join(snap.StaleFunds, ", "),
			),
			Details: map[string]any{
				"stale_funds": snap.StaleFunds,
				"allowed":     a.cfg.MaxStaleFunds,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
