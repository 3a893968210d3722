// Package parser turns raw transcripts into time-addressed segments.
package parser

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/raphaelgruber/vidrag/internal/models"
)

// DefaultSegmentDuration is the window length in seconds.
const DefaultSegmentDuration = 30.0

var (
	// ErrEmptyTranscript indicates a transcript with no usable text.
	ErrEmptyTranscript = errors.New("empty transcript")

	// ErrNonMonotonic indicates entry timestamps that go backwards.
	ErrNonMonotonic = errors.New("transcript timestamps are not monotonic")

	// ErrNegativeTimestamp indicates an entry before t=0.
	ErrNegativeTimestamp = errors.New("negative transcript timestamp")

	// ErrInvalidDuration indicates a non-positive segment window.
	ErrInvalidDuration = errors.New("segment duration must be positive")
)

// SegmentConfig configures segmentation.
type SegmentConfig struct {
	// Duration is the window length in seconds.
	Duration float64
}

// DefaultSegmentConfig returns the 30 second window configuration.
func DefaultSegmentConfig() SegmentConfig {
	return SegmentConfig{Duration: DefaultSegmentDuration}
}

// ValidateTranscript checks the structural requirements segmentation relies on.
func ValidateTranscript(t models.Transcript) error {
	if len(t.Entries) == 0 {
		return ErrEmptyTranscript
	}
	hasText := false
	prev := math.Inf(-1)
	for i, e := range t.Entries {
		if e.Timestamp < 0 || math.IsNaN(e.Timestamp) {
			return fmt.Errorf("%w: entry %d at %v", ErrNegativeTimestamp, i, e.Timestamp)
		}
		if e.Timestamp < prev {
			return fmt.Errorf("%w: entry %d at %.3fs follows %.3fs", ErrNonMonotonic, i, e.Timestamp, prev)
		}
		prev = e.Timestamp
		if strings.TrimSpace(e.Text) != "" {
			hasText = true
		}
	}
	if !hasText {
		return ErrEmptyTranscript
	}
	return nil
}

// window collects the entries that fall into one [start, start+D) slot.
type window struct {
	index int
	parts []string
}

// Segment splits a transcript into contiguous fixed-length segments.
//
// Windows of cfg.Duration seconds start at the first entry's timestamp, blank or
// not, and each entry lands in the window containing it. Blank entries add no
// text but still count as timestamps. Windows without text are dropped
// and the preceding segment stretches to the next kept one, so segments stay
// contiguous. The final segment ends at the last entry plus the window length,
// or at the transcript duration when that is known and smaller.
//
// Only the timestamps and cfg.Duration determine boundaries.
func Segment(t models.Transcript, cfg SegmentConfig) ([]models.VideoSegment, error) {
	if cfg.Duration <= 0 || math.IsNaN(cfg.Duration) || math.IsInf(cfg.Duration, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDuration, cfg.Duration)
	}
	if err := ValidateTranscript(t); err != nil {
		return nil, err
	}

	entries := make([]models.TranscriptEntry, 0, len(t.Entries))
	for _, e := range t.Entries {
		if text := strings.TrimSpace(e.Text); text != "" {
			entries = append(entries, models.TranscriptEntry{Timestamp: e.Timestamp, Text: text})
		}
	}

	origin := t.Entries[0].Timestamp
	d := cfg.Duration

	var windows []*window
	for _, e := range entries {
		idx := int(math.Floor((e.Timestamp - origin) / d))
		if len(windows) == 0 || windows[len(windows)-1].index != idx {
			windows = append(windows, &window{index: idx})
		}
		w := windows[len(windows)-1]
		w.parts = append(w.parts, e.Text)
	}

	segments := make([]models.VideoSegment, len(windows))
	for i, w := range windows {
		segments[i] = models.VideoSegment{
			VideoID:   t.VideoID,
			StartTime: origin + float64(w.index)*d,
			Text:      strings.Join(w.parts, " "),
			Entities:  []string{},
			Topics:    []string{},
			Title:     t.Title,
			Source:    t.Source,
		}
	}

	for i := 0; i < len(segments)-1; i++ {
		segments[i].EndTime = segments[i+1].StartTime
	}
	last := &segments[len(segments)-1]
	last.EndTime = t.Entries[len(t.Entries)-1].Timestamp + d
	if t.Duration > last.StartTime && t.Duration < last.EndTime {
		last.EndTime = t.Duration
	}

	for i := range segments {
		segments[i].SegmentID = models.SegmentID(t.VideoID, segments[i].StartTime, segments[i].EndTime)
	}

	return segments, nil
}
