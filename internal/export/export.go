// Package export writes lead query results as CSV or newline-delimited JSON.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/FranksOps/leadfinder/internal/apperr"
	"github.com/FranksOps/leadfinder/internal/storage"
)

// Format is an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts "csv", "json" or "ndjson", case-insensitively. Empty
// means CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "json", "ndjson":
		return FormatJSON, nil
	}
	return "", apperr.Validation(fmt.Sprintf("unknown export format %q", s)).WithOp("export.ParseFormat")
}

// ContentType is the HTTP media type for f.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/x-ndjson"
	}
	return "text/csv; charset=utf-8"
}

// Filename is the attachment name used for downloads.
func (f Format) Filename() string {
	if f == FormatJSON {
		return "leads.ndjson"
	}
	return "leads.csv"
}

// Header is the CSV column order.
var Header = []string{
	"id",
	"name",
	"category",
	"address",
	"phone",
	"website",
	"rating",
	"review_count",
	"lead_score",
}

// Querier is the read side of storage.Repository.
type Querier interface {
	Query(ctx context.Context, f storage.Filter) ([]*storage.Business, error)
}

// Write queries repo with filter and encodes the result to w. It returns the
// number of records written.
func Write(ctx context.Context, repo Querier, filter storage.Filter, format Format, w io.Writer) (int, error) {
	businesses, err := repo.Query(ctx, filter)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindPersistence, "query leads", err).WithOp("export.Write")
	}

	switch format {
	case FormatCSV:
		return len(businesses), writeCSV(w, businesses)
	case FormatJSON:
		return len(businesses), writeNDJSON(w, businesses)
	}
	return 0, apperr.Validation(fmt.Sprintf("unknown export format %q", format)).WithOp("export.Write")
}

func writeCSV(w io.Writer, businesses []*storage.Business) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	for _, b := range businesses {
		if err := cw.Write(record(b)); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func record(b *storage.Business) []string {
	rating := ""
	if b.Rating != nil {
		rating = strconv.FormatFloat(*b.Rating, 'f', -1, 64)
	}
	score := ""
	if b.LeadScore != nil {
		score = strconv.Itoa(*b.LeadScore)
	}
	return []string{
		b.ID,
		b.Name,
		b.Category,
		b.Address,
		b.Phone,
		b.Website,
		rating,
		strconv.Itoa(b.ReviewCount),
		score,
	}
}

func writeNDJSON(w io.Writer, businesses []*storage.Business) error {
	enc := json.NewEncoder(w)
	for _, b := range businesses {
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	return nil
}
