// Package metrics holds the Prometheus instruments for ingestion and resolution.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the service exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	IngestOutcomes       *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	DownloadFailures     *prometheus.CounterVec
	ResolutionsTotal     *prometheus.CounterVec
	ResolutionCacheHits  *prometheus.CounterVec
	CredentialRotations  *prometheus.CounterVec
	CredentialsAvailable *prometheus.GaugeVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// to expose them on /metrics.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IngestOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "holdings_ingest_outcomes_total",
			Help: "Terminal ingestion states by source and state",
		}, []string{"source", "state"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "holdings_ingest_stage_duration_seconds",
			Help:    "Time spent in each orchestrator state",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"state"}),
		DownloadFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "holdings_download_failures_total",
			Help: "Candidate documents that could not be fetched",
		}, []string{"source"}),
		ResolutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "holdings_resolutions_total",
			Help: "Resolution results by answering source; exhausted and not_applicable included",
		}, []string{"source"}),
		ResolutionCacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "holdings_resolution_cache_hits_total",
			Help: "Resolution cache hits by backend",
		}, []string{"backend"}),
		CredentialRotations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "holdings_credential_rotations_total",
			Help: "Quota signals that moved a service to its next credential",
		}, []string{"service"}),
		CredentialsAvailable: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "holdings_credentials_available",
			Help: "Credentials not cooling down, per service",
		}, []string{"service"}),
	}
}

// IngestOutcome counts one terminal ingestion state.
func (m *Metrics) IngestOutcome(source, state string) {
	if m == nil {
		return
	}
	m.IngestOutcomes.WithLabelValues(source, state).Inc()
}

// ObserveStage records the time spent in one orchestrator state.
func (m *Metrics) ObserveStage(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(state).Observe(d.Seconds())
}

// DownloadFailed counts a candidate that failed to download.
func (m *Metrics) DownloadFailed(source string) {
	if m == nil {
		return
	}
	m.DownloadFailures.WithLabelValues(source).Inc()
}

// Resolved counts one resolution answered by source.
func (m *Metrics) Resolved(source string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(source).Inc()
}

// CacheHit counts a resolution served from cache.
func (m *Metrics) CacheHit(backend string) {
	if m == nil {
		return
	}
	m.ResolutionCacheHits.WithLabelValues(backend).Inc()
}

// CredentialRotated counts a quota-driven rotation and updates availability.
func (m *Metrics) CredentialRotated(service string, available int) {
	if m == nil {
		return
	}
	m.CredentialRotations.WithLabelValues(service).Inc()
	m.CredentialsAvailable.WithLabelValues(service).Set(float64(available))
}
