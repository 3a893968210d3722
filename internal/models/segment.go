// Package models defines the data structures shared across vidrag packages.
package models

import (
	"strconv"

	"github.com/google/uuid"
)

// segmentNamespace scopes SHA-1 segment ids so they never collide with other uuid v5 users.
var segmentNamespace = uuid.MustParse("6f1d3c2a-8b4e-5f7a-9c0d-2e3f4a5b6c7d")

// TranscriptEntry is one timestamped caption line.
type TranscriptEntry struct {
	Timestamp float64 `json:"timestamp"`
	Text      string  `json:"text"`
}

// Transcript is the raw input to segmentation for one video.
type Transcript struct {
	VideoID  string            `json:"video_id"`
	Title    string            `json:"title,omitempty"`
	Source   string            `json:"source,omitempty"`
	Duration float64           `json:"duration,omitempty"` // 0 when unknown
	Entries  []TranscriptEntry `json:"entries"`
}

// VideoSegment is a contiguous time window of a video transcript with its
// annotations and embedding.
type VideoSegment struct {
	SegmentID string    `json:"segment_id"`
	VideoID   string    `json:"video_id"`
	StartTime float64   `json:"start_time"`
	EndTime   float64   `json:"end_time"`
	Text      string    `json:"text"`
	Entities  []string  `json:"entities"`
	Topics    []string  `json:"topics"`
	Embedding []float32 `json:"embedding,omitempty"`
	// Degraded marks a zero-vector embedding substituted after an embedder failure.
	Degraded bool   `json:"degraded,omitempty"`
	Title    string `json:"title,omitempty"`
	Source   string `json:"source,omitempty"`
}

// Duration returns the segment length in seconds.
func (s VideoSegment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// SegmentID derives the stable identifier of a segment from its video and bounds.
// Re-segmenting the same transcript with the same window yields the same ids.
func SegmentID(videoID string, start, end float64) string {
	key := videoID + "|" + formatSeconds(start) + "|" + formatSeconds(end)
	return uuid.NewSHA1(segmentNamespace, []byte(key)).String()
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// TimeRange is a closed interval in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Intersects reports whether [start, end] overlaps the range. Touching bounds count.
func (r TimeRange) Intersects(start, end float64) bool {
	return start <= r.End && end >= r.Start
}

// Valid reports whether the range is well formed.
func (r TimeRange) Valid() bool {
	return r.Start >= 0 && r.End >= r.Start
}
