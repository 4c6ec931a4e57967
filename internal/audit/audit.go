// Package audit inspects a business's website and reports the deficiencies
// that make it a sales lead.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/FranksOps/leadfinder/internal/scraper"
	"github.com/FranksOps/leadfinder/internal/storage"
)

// Fetcher is the part of *scraper.Fetcher the auditor needs.
type Fetcher interface {
	Fetch(ctx context.Context, target string, kind scraper.Kind) (*scraper.Document, error)
}

// Config tunes an Auditor. Zero values get defaults.
type Config struct {
	SlowThreshold    time.Duration
	PlaceholderTerms []string
	Region           string
	Logger           *slog.Logger
}

// Auditor fetches and inspects business websites.
type Auditor struct {
	fetcher Fetcher
	rules   []Rule
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Auditor.
func New(fetcher Fetcher, cfg Config) *Auditor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		fetcher: fetcher,
		rules: Rules(RuleConfig{
			SlowThreshold:    cfg.SlowThreshold,
			PlaceholderTerms: cfg.PlaceholderTerms,
			Region:           cfg.Region,
		}),
		logger: logger,
		now:    time.Now,
	}
}

// Audit never fails: fetch problems become issues in the summary.
func (a *Auditor) Audit(ctx context.Context, b *storage.Business) storage.AuditSummary {
	if b.Website == "" {
		summary := storage.AuditSummary{
			Status:     storage.AuditNoWebsite,
			Issues:     []string{"No website found"},
			IssueCodes: []storage.IssueCode{storage.IssueNoWebsite},
			Signals:    map[string]any{"has_website": false},
		}
		summary.AuditedAt = a.now()
		return summary
	}

	doc, err := a.fetcher.Fetch(ctx, b.Website, scraper.KindWebsite)
	if err != nil {
		kind := scraper.ErrUnreachable
		signals := map[string]any{"has_website": true}
		if fe, ok := scraper.AsFetchError(err); ok {
			kind = fe.Kind
			if fe.StatusCode != 0 {
				signals["status_code"] = fe.StatusCode
			}
			if fe.Source != "" {
				signals["blocked_by"] = fe.Source
			}
		}
		a.logger.Warn("audit fetch failed", "business", b.ID, "url", b.Website, "kind", kind, "err", err)
		summary := failed(kind, signals)
		summary.AuditedAt = a.now()
		return summary
	}

	summary := Inspect(doc, a.rules)
	summary.AuditedAt = a.now()
	a.logger.Debug("audit complete", "business", b.ID, "url", doc.FinalURL, "issues", len(summary.Issues))
	return summary
}

func failed(kind scraper.ErrorKind, signals map[string]any) storage.AuditSummary {
	summary := storage.AuditSummary{
		Status:      storage.AuditFailed,
		Signals:     signals,
		AuditFailed: true,
		FailureKind: string(kind),
	}
	switch kind {
	case scraper.ErrBlocked:
		summary.Issues = []string{"Website blocked automated audit"}
		summary.IssueCodes = []storage.IssueCode{storage.IssueAuditBlocked}
	case scraper.ErrMalformed:
		summary.Issues = []string{"Website returned a broken response"}
		summary.IssueCodes = []storage.IssueCode{storage.IssueBrokenResponse}
	default:
		summary.Issues = []string{"Website unreachable"}
		summary.IssueCodes = []storage.IssueCode{storage.IssueUnreachable}
	}
	return summary
}
