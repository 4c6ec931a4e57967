// Package scoring turns an audit into a 0-100 lead score with a weighted
// deficiency model: every detected issue costs points from a fixed baseline
// and the listing's reputation nudges the result.
package scoring

import (
	"fmt"
	"strings"

	"github.com/FranksOps/leadfinder/internal/storage"
)

const (
	// Baseline is the score before any penalty or adjustment.
	Baseline = 90
	MinScore = 0
	MaxScore = 100
)

// DefaultWeights maps each issue code to the points it costs.
var DefaultWeights = map[storage.IssueCode]int{
	storage.IssueNoWebsite:              40,
	storage.IssueUnreachable:            30,
	storage.IssueBrokenResponse:         20,
	storage.IssueNoHTTPS:                15,
	storage.IssueSlowLoad:               10,
	storage.IssueMissingContact:         10,
	storage.IssueNoMobileViewport:       10,
	storage.IssueEmptyPage:              10,
	storage.IssueAuditBlocked:           5,
	storage.IssueMissingTitle:           5,
	storage.IssueMissingMetaDescription: 5,
}

// Model scores businesses. The zero value is not usable; use NewModel.
type Model struct {
	weights map[storage.IssueCode]int
}

// NewModel returns a model with the given weights, or DefaultWeights when nil.
func NewModel(weights map[storage.IssueCode]int) *Model {
	if weights == nil {
		weights = DefaultWeights
	}
	w := make(map[storage.IssueCode]int, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &Model{weights: w}
}

// Term is one line of a score breakdown.
type Term struct {
	Label  string `json:"label"`
	Points int    `json:"points"`
}

// Breakdown explains how a score was reached.
type Breakdown struct {
	Terms []Term `json:"terms"`
	Raw   int    `json:"raw"`
	Score int    `json:"score"`
}

func (b Breakdown) String() string {
	var sb strings.Builder
	for _, t := range b.Terms {
		fmt.Fprintf(&sb, "%+4d  %s\n", t.Points, t.Label)
	}
	fmt.Fprintf(&sb, "= %d", b.Score)
	if b.Raw != b.Score {
		fmt.Fprintf(&sb, " (clamped from %d)", b.Raw)
	}
	return sb.String()
}

// Score is pure: the same business and audit always give the same score.
// A business with no website scores at most Baseline - 40 + 10 = 60.
func (m *Model) Score(b *storage.Business, a storage.AuditSummary) int {
	return m.Explain(b, a).Score
}

// Explain returns the per-term breakdown behind Score.
func (m *Model) Explain(b *storage.Business, a storage.AuditSummary) Breakdown {
	terms := []Term{{Label: "baseline", Points: Baseline}}

	seen := make(map[storage.IssueCode]bool, len(a.IssueCodes))
	for _, code := range a.IssueCodes {
		if seen[code] {
			continue
		}
		seen[code] = true
		if w, ok := m.weights[code]; ok && w != 0 {
			terms = append(terms, Term{Label: string(code), Points: -w})
		}
	}

	if adj, label := reputation(b); adj != 0 {
		terms = append(terms, Term{Label: label, Points: adj})
	}

	raw := 0
	for _, t := range terms {
		raw += t.Points
	}
	return Breakdown{Terms: terms, Raw: raw, Score: clamp(raw)}
}

// reputation nudges the score by at most -5..+10 based on rating and reviews.
func reputation(b *storage.Business) (int, string) {
	if b == nil {
		return 0, ""
	}
	switch {
	case b.ReviewCount == 0:
		return -5, "no reviews"
	case b.Rating != nil && *b.Rating >= 4.0 && b.ReviewCount >= 10:
		return 10, "well reviewed"
	case b.Rating != nil && *b.Rating >= 4.0:
		return 5, "good rating, few reviews"
	case b.Rating != nil && *b.Rating < 3.5 && b.ReviewCount >= 20:
		return -5, "poorly reviewed"
	}
	return 0, ""
}

func clamp(v int) int {
	return max(MinScore, min(MaxScore, v))
}
