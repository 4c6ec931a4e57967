// Package metrics exposes the Prometheus instruments for fetches, audits and
// jobs.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/FranksOps/leadfinder/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadfinder_fetch_requests_total",
			Help: "Total number of fetches by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadfinder_fetch_duration_seconds",
			Help:    "Duration of fetches in seconds, retries included",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadfinder_fetch_bytes_total",
			Help: "Total bytes downloaded across all fetches",
		},
		[]string{"kind"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadfinder_proxy_failures_total",
			Help: "Total number of proxy failures during fetches, by configured proxy",
		},
		[]string{"proxy_url"},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadfinder_jobs_total",
			Help: "Scrape jobs by terminal state",
		},
		[]string{"state"},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadfinder_job_duration_seconds",
			Help:    "Wall time of scrape jobs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	BusinessesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadfinder_businesses_processed_total",
			Help: "Businesses processed by the pipeline by outcome",
		},
		[]string{"outcome"},
	)

	AuditIssuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadfinder_audit_issues_total",
			Help: "Audit issues detected by code",
		},
		[]string{"code"},
	)

	LeadScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadfinder_lead_score",
			Help:    "Distribution of computed lead scores",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		},
	)
)

// RecordFetch updates the fetch metrics. outcome is "ok" or a failure kind.
// Target hosts are open-ended, so they are logged rather than used as labels.
func RecordFetch(kind, outcome string, d time.Duration, bytes int) {
	FetchRequestsTotal.WithLabelValues(kind, outcome).Inc()
	FetchDuration.WithLabelValues(kind).Observe(d.Seconds())
	FetchBytesTotal.WithLabelValues(kind).Add(float64(bytes))
}

// RecordAudit counts the issues of one audit and the resulting score.
func RecordAudit(a storage.AuditSummary, score int) {
	for _, code := range a.IssueCodes {
		AuditIssuesTotal.WithLabelValues(string(code)).Inc()
	}
	LeadScores.Observe(float64(score))
}

// RecordJob records a finished job.
func RecordJob(state string, d time.Duration) {
	JobsTotal.WithLabelValues(state).Inc()
	JobDuration.Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server is a standalone HTTP listener for /metrics, used by one-shot CLI
// runs that have no API server to mount the handler on.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on addr and serves /metrics in the background.
func Start(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv, ln: ln}, nil
}

// Addr is the address the server is listening on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
