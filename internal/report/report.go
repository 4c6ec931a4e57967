// Package report renders human-readable summaries of jobs and stored leads.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	texttemplate "text/template"
	"time"

	"github.com/FranksOps/leadfinder/internal/pipeline"
	"github.com/FranksOps/leadfinder/internal/storage"
)

// ScoreBands are the lead score buckets reported, highest first.
var ScoreBands = []string{"80-100", "60-79", "40-59", "0-39"}

// Summary aggregates a set of stored leads.
type Summary struct {
	TotalLeads   int            `json:"total_leads"`
	NoWebsite    int            `json:"no_website"`
	AuditFailed  int            `json:"audit_failed"`
	AverageScore float64        `json:"average_score"`
	ScoreBands   map[string]int `json:"score_bands"`
	IssueCounts  map[string]int `json:"issue_counts"`
	Categories   map[string]int `json:"categories"`
}

// GenerateSummary aggregates businesses. Unscored businesses are ignored.
func GenerateSummary(businesses []*storage.Business) Summary {
	s := Summary{
		ScoreBands:  make(map[string]int),
		IssueCounts: make(map[string]int),
		Categories:  make(map[string]int),
	}

	total := 0
	for _, b := range businesses {
		if b.LeadScore == nil {
			continue
		}
		s.TotalLeads++
		total += *b.LeadScore
		s.ScoreBands[band(*b.LeadScore)]++

		if b.Category != "" {
			s.Categories[b.Category]++
		}
		if b.Audit == nil {
			continue
		}
		switch b.Audit.Status {
		case storage.AuditNoWebsite:
			s.NoWebsite++
		case storage.AuditFailed:
			s.AuditFailed++
		}
		for _, code := range b.Audit.IssueCodes {
			s.IssueCounts[string(code)]++
		}
	}

	if s.TotalLeads > 0 {
		s.AverageScore = float64(total) / float64(s.TotalLeads)
	}
	return s
}

func band(score int) string {
	switch {
	case score >= 80:
		return ScoreBands[0]
	case score >= 60:
		return ScoreBands[1]
	case score >= 40:
		return ScoreBands[2]
	}
	return ScoreBands[3]
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

type count struct {
	Key   string
	Count int
}

// sorted orders map entries by count descending, then key.
func sorted(m map[string]int) []count {
	out := make([]count, 0, len(m))
	for k, v := range m {
		out = append(out, count{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

type summaryView struct {
	Summary
	Bands  []count
	Issues []count
	Cats   []count
}

func view(s Summary) summaryView {
	v := summaryView{Summary: s, Issues: sorted(s.IssueCounts), Cats: sorted(s.Categories)}
	for _, b := range ScoreBands {
		v.Bands = append(v.Bands, count{b, s.ScoreBands[b]})
	}
	return v
}

var summaryText = texttemplate.Must(texttemplate.New("summary").Parse(`Lead Summary
------------
Leads:         {{.TotalLeads}}
Average score: {{printf "%.1f" .AverageScore}}
No website:    {{.NoWebsite}}
Audit failed:  {{.AuditFailed}}

Score bands:
{{- range .Bands}}
  {{printf "%-7s" .Key}} {{.Count}}
{{- end}}

Issues:
{{- range .Issues}}
  {{.Key}}: {{.Count}}
{{- else}}
  None
{{- end}}

Categories:
{{- range .Cats}}
  {{.Key}}: {{.Count}}
{{- else}}
  None
{{- end}}
`))

// WriteText writes a plain-text lead summary.
func WriteText(w io.Writer, s Summary) error {
	if err := summaryText.Execute(w, view(s)); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

var summaryHTML = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Lead Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Lead Report</h1>
  <div class="stat-card"><div>Leads</div><div class="stat-val">{{.TotalLeads}}</div></div>
  <div class="stat-card"><div>Average Score</div><div class="stat-val">{{printf "%.1f" .AverageScore}}</div></div>
  <div class="stat-card"><div>No Website</div><div class="stat-val">{{.NoWebsite}}</div></div>
  <div class="stat-card"><div>Audit Failed</div><div class="stat-val">{{.AuditFailed}}</div></div>

  <h3>Score Bands</h3>
  <table>
    <tr><th>Band</th><th>Leads</th></tr>
    {{- range .Bands}}
    <tr><td>{{.Key}}</td><td>{{.Count}}</td></tr>
    {{- end}}
  </table>

  <h3>Issues</h3>
  <table>
    <tr><th>Issue</th><th>Count</th></tr>
    {{- range .Issues}}
    <tr><td>{{.Key}}</td><td>{{.Count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`))

// WriteHTML writes a standalone HTML lead report.
func WriteHTML(w io.Writer, s Summary) error {
	if err := summaryHTML.Execute(w, view(s)); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// WriteJob writes a plain-text job result.
func WriteJob(w io.Writer, res *pipeline.JobResult) error {
	fmt.Fprintf(w, "Job %s (%s)\n", res.ID, res.State)
	fmt.Fprintf(w, "Query:      %q\n", res.Query)
	fmt.Fprintf(w, "Discovered: %d\n", res.Discovered)
	fmt.Fprintf(w, "Persisted:  %d\n", res.Count)
	fmt.Fprintf(w, "Duration:   %s\n", res.CompletedAt.Sub(res.StartedAt).Round(time.Millisecond))
	if len(res.Errors) == 0 {
		_, err := fmt.Fprintln(w, "Errors:     none")
		return err
	}
	fmt.Fprintf(w, "Errors:     %d\n", len(res.Errors))
	for _, e := range res.Errors {
		who := e.Name
		if who == "" {
			who = "-"
		}
		if _, err := fmt.Fprintf(w, "  [%s] %s: %s\n", e.Stage, who, e.Message); err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}
	return nil
}

// WriteLeads writes businesses as an aligned table.
func WriteLeads(w io.Writer, businesses []*storage.Business) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tNAME\tCATEGORY\tWEBSITE\tISSUES\tID")
	for _, b := range businesses {
		score := "-"
		if b.LeadScore != nil {
			score = strconv.Itoa(*b.LeadScore)
		}
		website := b.Website
		if website == "" {
			website = "-"
		}
		issues := "-"
		if b.Audit != nil && len(b.Audit.Issues) > 0 {
			issues = strings.Join(b.Audit.Issues, "; ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", score, b.Name, b.Category, website, issues, b.ID)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
