// Package cli provides the HTTP client and output formatting used by the
// ruiji command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one record per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, resp)
	case OutputCompact:
		for _, rec := range resp.Records {
			line := rec.ID
			if d, ok := resp.Distances[rec.ID]; ok {
				line += fmt.Sprintf("\t%.4f", d)
			}
			fmt.Fprintf(w, "%s\t%s\n", line, utils.Truncate(fieldsLine(rec), 120))
		}
		return nil
	default:
		fmt.Fprintf(w, "\nFound %d records in %dms\n\n", resp.Total, resp.QueryTime)
		for i, rec := range resp.Records {
			fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "%d. %s", i+1, rec.ID)
			if d, ok := resp.Distances[rec.ID]; ok {
				fmt.Fprintf(w, " | Distance: %.4f", d)
			}
			fmt.Fprintln(w)
			for _, k := range sortedKeys(rec.Fields) {
				fmt.Fprintf(w, "  %s: %s\n", k, utils.Truncate(utils.OneLine(fmt.Sprint(rec.Fields[k])), 200))
			}
			fmt.Fprintln(w)
		}
		return nil
	}
}

// WriteSaved writes the records returned by save.
func WriteSaved(w io.Writer, recs []*models.Record, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, recs)
	}
	for _, rec := range recs {
		fmt.Fprintf(w, "Saved %s/%s\n", rec.Type, rec.ID)
	}
	return nil
}

// WriteAnswer writes a non-streamed answer with its sources.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintln(w, resp.Answer)
	if len(resp.Sources) > 0 && format == OutputText {
		fmt.Fprintln(w, "\nSources:")
		for _, h := range resp.Sources {
			if h.HasDistance() {
				fmt.Fprintf(w, "  [%s] %.4f\n", h.ID, *h.Distance)
			} else {
				fmt.Fprintf(w, "  [%s]\n", h.ID)
			}
		}
	}
	return nil
}

// WriteStatus writes the server status.
func WriteStatus(w io.Writer, status *StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintln(w, "Record types:")
	names := make([]string, 0, len(status.Types))
	for name := range status.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := status.Types[name]
		fmt.Fprintf(w, "  %-20s %8d records  (%s)\n", name, t.Records, t.Provider)
	}
	if status.DiskUsageBytes > 0 {
		fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(status.DiskUsageBytes))
	}
	return nil
}

// WriteReport writes a key/value summary such as a reembed or import report.
func WriteReport(w io.Writer, report map[string]interface{}, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	for _, k := range sortedKeys(report) {
		fmt.Fprintf(w, "%s: %v\n", k, report[k])
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func fieldsLine(rec *models.Record) string {
	b, err := json.Marshal(rec.Fields)
	if err != nil {
		return ""
	}
	return string(b)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
