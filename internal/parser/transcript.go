package parser

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/raphaelgruber/vidrag/internal/models"
)

var markupTag = regexp.MustCompile(`<[^>]+>`)

// ParseSRT parses SubRip captions into transcript entries, one per cue.
//
//	1
//	00:00:00,000 --> 00:00:01,830
//	I'm happy to
//	have you here today.
func ParseSRT(r io.Reader) ([]models.TranscriptEntry, error) {
	return parseCues(r, false)
}

// ParseWebVTT parses WebVTT captions into transcript entries, one per cue.
func ParseWebVTT(r io.Reader) ([]models.TranscriptEntry, error) {
	return parseCues(r, true)
}

func parseCues(r io.Reader, vtt bool) ([]models.TranscriptEntry, error) {
	var (
		entries []models.TranscriptEntry
		current *models.TranscriptEntry
		lines   []string
		skip    bool // inside a VTT NOTE/STYLE block
	)

	flush := func() {
		if current != nil && len(lines) > 0 {
			current.Text = strings.Join(lines, " ")
			entries = append(entries, *current)
		}
		current = nil
		lines = nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		if line == "" {
			flush()
			skip = false
			continue
		}
		if skip {
			continue
		}
		if vtt && current == nil {
			if strings.HasPrefix(line, "WEBVTT") || strings.HasPrefix(line, "NOTE") ||
				strings.HasPrefix(line, "STYLE") || strings.HasPrefix(line, "REGION") {
				skip = true
				continue
			}
		}

		if start, _, ok := strings.Cut(line, "-->"); ok {
			flush()
			ts, err := parseTimestamp(strings.TrimSpace(start))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			current = &models.TranscriptEntry{Timestamp: ts}
			continue
		}

		// Sequence numbers and cue identifiers precede the timing line.
		if current == nil {
			continue
		}

		text := strings.TrimSpace(markupTag.ReplaceAllString(line, ""))
		if text != "" {
			lines = append(lines, text)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read captions: %w", err)
	}
	flush()

	return entries, nil
}

// parseTimestamp accepts HH:MM:SS,mmm, HH:MM:SS.mmm and MM:SS.mmm.
func parseTimestamp(s string) (float64, error) {
	s = strings.Replace(s, ",", ".", 1)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	var total float64
	for i, p := range parts {
		var (
			v   float64
			err error
		)
		if i == len(parts)-1 {
			v, err = strconv.ParseFloat(p, 64)
		} else {
			var n int
			n, err = strconv.Atoi(p)
			v = float64(n)
		}
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		total = total*60 + v
	}
	return total, nil
}

// jsonEntry matches the caption format emitted by common YouTube transcript tools.
type jsonEntry struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// ParseJSON parses a JSON array of {"text", "start", "duration"} objects.
func ParseJSON(r io.Reader) ([]models.TranscriptEntry, error) {
	var raw []jsonEntry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode transcript json: %w", err)
	}

	entries := make([]models.TranscriptEntry, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, models.TranscriptEntry{
			Timestamp: e.Start,
			Text:      strings.TrimSpace(e.Text),
		})
	}
	return entries, nil
}

// ParseTranscriptFile reads a caption file, choosing the format by extension
// (.srt, .vtt, .json).
func ParseTranscriptFile(path string) ([]models.TranscriptEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt":
		return ParseSRT(f)
	case ".vtt":
		return ParseWebVTT(f)
	case ".json":
		return ParseJSON(f)
	default:
		return nil, fmt.Errorf("unsupported transcript format: %s", filepath.Ext(path))
	}
}
