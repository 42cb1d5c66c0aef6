package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/holdings-cli/internal/config"
)

func thresholds() config.MonitorConfig {
	return config.MonitorConfig{
		FailureRateThreshold: 0.25,
		RejectRateThreshold:  0.5,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(thresholds())

	snap := &HealthSnapshot{
		Promoted:      18,
		Failed:        2,
		FailRate:      0.1,
		LookbackHours: 24,
	}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(thresholds())

	snap := &HealthSnapshot{
		Promoted:      4,
		Failed:        6,
		FailRate:      0.6,
		LookbackHours: 24,
	}
	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertIngestFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "60.0%")
	assert.Equal(t, 10, alerts[0].Details["finished"])
}

func TestAlerter_Evaluate_RejectRate(t *testing.T) {
	a := NewAlerter(thresholds())

	snap := &HealthSnapshot{
		Promoted:   2,
		Rejected:   8,
		RejectRate: 0.8,
	}
	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertQARejectRate, alerts[0].Type)
}

func TestAlerter_Evaluate_TooFewRuns(t *testing.T) {
	a := NewAlerter(thresholds())

	snap := &HealthSnapshot{Failed: 2, FailRate: 1}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_StaleFunds(t *testing.T) {
	cfg := thresholds()
	cfg.MaxStaleFunds = 1
	a := NewAlerter(cfg)

	assert.Empty(t, a.Evaluate(&HealthSnapshot{StaleFunds: []string{"a"}}))

	alerts := a.Evaluate(&HealthSnapshot{StaleFunds: []string{"a", "b"}})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStaleFunds, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "a, b")
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	var last Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&last))
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := thresholds()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertStaleFunds, Severity: "medium", Message: "stale"}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, AlertStaleFunds, last.Type)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := thresholds()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertStaleFunds}}))
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(thresholds())
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertStaleFunds}}))
}
