package audit

import (
	"bytes"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/leadfinder/internal/analyzer"
	"github.com/FranksOps/leadfinder/internal/scraper"
	"github.com/FranksOps/leadfinder/internal/storage"
)

// Page is a fetched document prepared for rule evaluation.
type Page struct {
	Doc  *scraper.Document
	HTML *goquery.Document
	// Text is the visible text of the body, scripts and styles removed.
	Text string
}

// Rule checks one deficiency. Check records its signals and reports whether
// the page is deficient.
type Rule struct {
	Code  storage.IssueCode
	Issue string
	Check func(p *Page, signals map[string]any) bool
}

// RuleConfig tunes the default rule table.
type RuleConfig struct {
	SlowThreshold    time.Duration
	PlaceholderTerms []string
	Region           string
}

// Rules returns the ordered rule table.
func Rules(cfg RuleConfig) []Rule {
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 3 * time.Second
	}
	if cfg.PlaceholderTerms == nil {
		cfg.PlaceholderTerms = analyzer.PlaceholderTerms
	}
	if cfg.Region == "" {
		cfg.Region = "US"
	}

	return []Rule{
		{
			Code:  storage.IssueEmptyPage,
			Issue: "Website returned an empty page",
			Check: func(p *Page, s map[string]any) bool {
				s["body_bytes"] = len(p.Doc.Body)
				return strings.TrimSpace(p.Text) == ""
			},
		},
		{
			Code:  storage.IssueNoHTTPS,
			Issue: "Website does not use HTTPS",
			Check: func(p *Page, s map[string]any) bool {
				ssl := usesHTTPS(p.Doc)
				s["has_ssl"] = ssl
				return !ssl
			},
		},
		{
			Code:  storage.IssueNoMobileViewport,
			Issue: "No mobile viewport declared",
			Check: func(p *Page, s map[string]any) bool {
				ok := metaContent(p.HTML, "viewport") != ""
				s["has_mobile_viewport"] = ok
				return !ok
			},
		},
		{
			Code:  storage.IssueMissingContact,
			Issue: "Missing or placeholder contact information",
			Check: func(p *Page, s map[string]any) bool {
				placeholders := analyzer.MatchedTerms(p.Text, cfg.PlaceholderTerms)
				has := hasContactLink(p.HTML, cfg.PlaceholderTerms) ||
					!analyzer.FindContacts(p.Text, cfg.Region, cfg.PlaceholderTerms).Empty()
				s["has_contact_info"] = has
				s["placeholder_terms"] = placeholders
				return !has || len(placeholders) > 0
			},
		},
		{
			Code:  storage.IssueSlowLoad,
			Issue: "Slow page load",
			Check: func(p *Page, s map[string]any) bool {
				s["load_time_ms"] = p.Doc.Duration.Milliseconds()
				return p.Doc.Duration > cfg.SlowThreshold
			},
		},
		{
			Code:  storage.IssueMissingTitle,
			Issue: "Missing page title",
			Check: func(p *Page, s map[string]any) bool {
				ok := strings.TrimSpace(p.HTML.Find("title").First().Text()) != ""
				s["has_title"] = ok
				return !ok
			},
		},
		{
			Code:  storage.IssueMissingMetaDescription,
			Issue: "Missing meta description",
			Check: func(p *Page, s map[string]any) bool {
				ok := metaContent(p.HTML, "description") != ""
				s["has_meta_description"] = ok
				return !ok
			},
		},
	}
}

// Inspect evaluates rules against doc in order. It depends on nothing but
// its arguments, so the same document always yields the same summary.
// AuditedAt is left for the caller.
func Inspect(doc *scraper.Document, rules []Rule) storage.AuditSummary {
	summary := storage.AuditSummary{
		Status:     storage.AuditInspected,
		Issues:     []string{},
		IssueCodes: []storage.IssueCode{},
		Signals:    map[string]any{"has_website": true},
	}

	html, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return failed(scraper.ErrMalformed, summary.Signals)
	}
	html.Find("script, style, noscript, template").Remove()

	page := &Page{
		Doc:  doc,
		HTML: html,
		Text: strings.Join(strings.Fields(html.Find("body").Text()), " "),
	}
	for _, r := range rules {
		if r.Check(page, summary.Signals) {
			summary.Issues = append(summary.Issues, r.Issue)
			summary.IssueCodes = append(summary.IssueCodes, r.Code)
		}
	}
	return summary
}

func usesHTTPS(doc *scraper.Document) bool {
	target := doc.FinalURL
	if target == "" {
		target = doc.URL
	}
	u, err := url.Parse(target)
	return err == nil && strings.EqualFold(u.Scheme, "https")
}

// metaContent returns the trimmed content of the first <meta name=...> tag,
// matching the name case-insensitively.
func metaContent(doc *goquery.Document, name string) string {
	var content string
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if n, _ := s.Attr("name"); strings.EqualFold(strings.TrimSpace(n), name) {
			v, _ := s.Attr("content")
			content = strings.TrimSpace(v)
			return false
		}
		return true
	})
	return content
}

func hasContactLink(doc *goquery.Document, terms []string) bool {
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.ToLower(strings.TrimSpace(href))
		for _, prefix := range []string{"tel:", "mailto:"} {
			if rest, ok := strings.CutPrefix(href, prefix); ok && len(rest) > 3 && !isPlaceholderLink(rest, terms) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func isPlaceholderLink(v string, terms []string) bool {
	for _, t := range terms {
		if t = strings.ToLower(t); t != "" && strings.Contains(v, t) {
			return true
		}
	}
	return false
}
