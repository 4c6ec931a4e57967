// Package storage holds the business record model and the Repository
// contract that persists it. Concrete backends live in subpackages and
// register themselves by DSN scheme.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/leadfinder/pkg/normalize"
)

// ErrNotFound is returned by Get and Delete for unknown ids.
var ErrNotFound = errors.New("storage: business not found")

// AuditStatus tags which branch of the audit produced a summary.
type AuditStatus string

const (
	AuditNoWebsite AuditStatus = "no_website"
	AuditInspected AuditStatus = "inspected"
	AuditFailed    AuditStatus = "failed"
)

// IssueCode is the machine-readable form of an audit issue. Scoring keys on
// these, never on the human-readable text.
type IssueCode string

const (
	IssueNoWebsite              IssueCode = "no_website"
	IssueUnreachable            IssueCode = "unreachable"
	IssueAuditBlocked           IssueCode = "audit_blocked"
	IssueBrokenResponse         IssueCode = "broken_response"
	IssueEmptyPage              IssueCode = "empty_page"
	IssueNoHTTPS                IssueCode = "no_https"
	IssueNoMobileViewport       IssueCode = "no_mobile_viewport"
	IssueMissingContact         IssueCode = "missing_contact"
	IssueSlowLoad               IssueCode = "slow_load"
	IssueMissingTitle           IssueCode = "missing_title"
	IssueMissingMetaDescription IssueCode = "missing_meta_description"
)

// AuditSummary is the outcome of auditing one business. It is replaced
// wholesale on every re-audit.
type AuditSummary struct {
	Status      AuditStatus    `json:"status"`
	Issues      []string       `json:"issues"`
	IssueCodes  []IssueCode    `json:"issue_codes"`
	Signals     map[string]any `json:"signals"`
	AuditedAt   time.Time      `json:"audited_at"`
	AuditFailed bool           `json:"audit_failed"`
	FailureKind string         `json:"failure_kind,omitempty"`
}

// HasIssue reports whether code was detected.
func (a AuditSummary) HasIssue(code IssueCode) bool {
	for _, c := range a.IssueCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Business is a discovered local business and its latest audit and score.
type Business struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Category      string        `json:"category,omitempty"`
	Address       string        `json:"address,omitempty"`
	Phone         string        `json:"phone,omitempty"`
	Website       string        `json:"website,omitempty"`
	Rating        *float64      `json:"rating,omitempty"`
	ReviewCount   int           `json:"review_count"`
	LeadScore     *int          `json:"lead_score"`
	Audit         *AuditSummary `json:"audit_summary,omitempty"`
	DiscoveredAt  time.Time     `json:"discovered_at"`
	LastUpdatedAt time.Time     `json:"last_updated_at"`
}

// Fingerprint derives the stable identity of a business from its normalized
// name and address. Listings without an address fall back to the source's
// own id when one is available.
func Fingerprint(name, address, sourceID string) string {
	key := normalize.Key(name) + "|" + normalize.Key(address)
	if normalize.Key(address) == "" && sourceID != "" {
		key = "src|" + sourceID
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

// Filter narrows a lead query. Only scored businesses are ever returned.
type Filter struct {
	MinScore int
	// Category matches case-insensitively; empty matches everything.
	Category string
	// Limit caps the result size; zero means no limit.
	Limit int
}

// Repository persists businesses keyed by fingerprint.
type Repository interface {
	// Upsert inserts b or overwrites every field but ID and DiscoveredAt.
	// The stored timestamps are written back into b.
	Upsert(ctx context.Context, b *Business) error
	Get(ctx context.Context, id string) (*Business, error)
	// Query returns scored businesses ordered by lead score descending,
	// then discovery time ascending, then id.
	Query(ctx context.Context, f Filter) ([]*Business, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// MarshalAudit encodes a summary for a JSON column. A nil summary is SQL NULL.
func MarshalAudit(a *AuditSummary) (any, error) {
	if a == nil {
		return nil, nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("storage: encode audit: %w", err)
	}
	return string(raw), nil
}

// UnmarshalAudit decodes a JSON column written by MarshalAudit.
func UnmarshalAudit(raw []byte) (*AuditSummary, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var a AuditSummary
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("storage: decode audit: %w", err)
	}
	return &a, nil
}
