package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/vidrag/internal/models"
	"github.com/raphaelgruber/vidrag/internal/service"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validateFormat(f string) error {
	switch f {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want text, json or yaml)", f)
}

// writeStructured encodes v as JSON or YAML. It reports false for text output.
func writeStructured(w io.Writer, f string, v any) (bool, error) {
	switch f {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

// printResults renders ranked segments.
func printResults(w io.Writer, f string, results []service.SearchResult) error {
	if results == nil {
		results = []service.SearchResult{}
	}
	if ok, err := writeStructured(w, f, results); ok {
		return err
	}

	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}
	fmt.Fprintf(w, "Found %d results:\n\n", len(results))
	for i, r := range results {
		printResult(w, i+1, r)
	}
	return nil
}

func printResult(w io.Writer, n int, r service.SearchResult) {
	title := r.VideoID
	if r.Title != "" && r.Title != r.VideoID {
		title = fmt.Sprintf("%s (%s)", r.Title, r.VideoID)
	}
	fmt.Fprintf(w, "%d. [%s-%s] %s  confidence %.2f", n, formatClock(r.StartTime), formatClock(r.EndTime), title, r.Confidence)
	if r.Degraded {
		fmt.Fprint(w, "  (no embedding)")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "   %s\n", truncate(r.Text, 200))
	if len(r.Entities) > 0 {
		fmt.Fprintf(w, "   Entities: %s\n", strings.Join(r.Entities, ", "))
	}
	if len(r.Topics) > 0 {
		fmt.Fprintf(w, "   Topics: %s\n", strings.Join(r.Topics, ", "))
	}
	if r.URL != "" {
		fmt.Fprintf(w, "   %s\n", r.URL)
	}
	if verbose {
		fmt.Fprintf(w, "   Segment: %s\n", r.SegmentID)
	}
	fmt.Fprintln(w)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// formatClock renders seconds as m:ss or h:mm:ss.
func formatClock(sec float64) string {
	total := int(math.Floor(sec))
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// parseClock accepts plain seconds ("95.5"), clock notation ("1:35", "1:02:03")
// and Go durations ("1m35s").
func parseClock(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time")
	}
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		var total float64
		for _, p := range parts {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil || v < 0 {
				return 0, fmt.Errorf("invalid time %q", s)
			}
			total = total*60 + v
		}
		return total, nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if v < 0 {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		return v, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return d.Seconds(), nil
}

// timeRangeFlags builds a range from --from/--to. Both empty means no range.
func timeRangeFlags(from, to string) (*models.TimeRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	r := &models.TimeRange{Start: 0, End: math.MaxFloat64}
	var err error
	if from != "" {
		if r.Start, err = parseClock(from); err != nil {
			return nil, fmt.Errorf("--from: %w", err)
		}
	}
	if to != "" {
		if r.End, err = parseClock(to); err != nil {
			return nil, fmt.Errorf("--to: %w", err)
		}
	}
	if !r.Valid() {
		return nil, fmt.Errorf("--from must not be after --to")
	}
	return r, nil
}
