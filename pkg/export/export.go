// Package export writes dispatch log records and zone summaries as JSON or
// CSV for spreadsheets and reporting.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/zonedispatch/core/dispatch/logging"
)

// Supported output formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// WriteJSON writes v to w as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteZoneMetrics writes per-zone metrics in the given format.
func WriteZoneMetrics(w io.Writer, format string, ms []logging.ZoneMetrics) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, ms)
	case FormatCSV:
		rows := make([][]string, 0, len(ms))
		for _, m := range ms {
			rows = append(rows, []string{
				string(m.Zone),
				m.Name,
				strconv.Itoa(m.Volume),
				optInt(m.AvgResponseSeconds),
				optInt(m.AvgCompleteSeconds),
				strconv.Itoa(m.Reroutes),
			})
		}
		return writeCSV(w, []string{"zone", "name", "volume", "avg_response_s", "avg_completion_s", "reroute_count"}, rows)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// WriteRecords writes dispatch log records in the given format. In CSV the
// free form data is flattened to sorted key=value pairs.
func WriteRecords(w io.Writer, format string, recs []logging.LogRecord) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, recs)
	case FormatCSV:
		rows := make([][]string, 0, len(recs))
		for _, r := range recs {
			score := ""
			if r.Score != 0 {
				score = strconv.FormatFloat(r.Score, 'f', -1, 64)
			}
			rows = append(rows, []string{
				r.Timestamp.UTC().Format(time.RFC3339),
				string(r.Event),
				r.TaskID,
				r.WorkerID,
				string(r.Zone),
				score,
				flatten(r.Data),
			})
		}
		return writeCSV(w, []string{"timestamp", "event", "task_id", "worker_id", "zone", "score", "data"}, rows)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func flatten(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, data[k])
	}
	return strings.Join(parts, ";")
}
