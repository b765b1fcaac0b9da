// Package reporting renders analytics reports as JSON, Markdown or CSV.
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"onchain-analytics/internal/analytics"
)

// Format is an output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

// ParseFormat accepts json, markdown (or md) and csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json, markdown or csv)", s)
	}
}

// Write renders r to w in format f.
func Write(w io.Writer, r *analytics.Report, f Format) error {
	switch f {
	case FormatMarkdown:
		_, err := io.WriteString(w, RenderMarkdown(r))
		return err
	case FormatCSV:
		_, err := io.WriteString(w, RenderCSV(r))
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
}
