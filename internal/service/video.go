package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/raphaelgruber/vidrag/internal/models"
)

// VideoInfo summarizes one stored video.
type VideoInfo struct {
	VideoID  string   `json:"video_id" yaml:"video_id"`
	Title    string   `json:"title,omitempty" yaml:"title,omitempty"`
	Source   string   `json:"source,omitempty" yaml:"source,omitempty"`
	Duration float64  `json:"duration" yaml:"duration"`
	Segments int      `json:"segments" yaml:"segments"`
	Degraded int      `json:"degraded,omitempty" yaml:"degraded,omitempty"`
	Entities []string `json:"entities" yaml:"entities"`
	Topics   []string `json:"topics" yaml:"topics"`
	URL      string   `json:"url,omitempty" yaml:"url,omitempty"`
}

// VideoInfo returns the segment count and the distinct entities and topics
// of a video. Duration is the end of its last segment.
func (s *SearchService) VideoInfo(ctx context.Context, videoID string) (VideoInfo, error) {
	if strings.TrimSpace(videoID) == "" {
		return VideoInfo{}, fmt.Errorf("%w: video id is required", ErrInvalidQuery)
	}
	segs, err := s.store.GetByVideo(ctx, videoID)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("%w: video info: %w", ErrUnavailable, err)
	}
	if len(segs) == 0 {
		return VideoInfo{}, fmt.Errorf("%w: video %s", ErrNotFound, videoID)
	}

	info := VideoInfo{VideoID: videoID, Segments: len(segs)}
	var entities, topics []string
	for _, seg := range segs {
		info.Title = lo.CoalesceOrEmpty(info.Title, seg.Title)
		info.Source = lo.CoalesceOrEmpty(info.Source, seg.Source)
		info.Duration = max(info.Duration, seg.EndTime)
		if seg.Degraded {
			info.Degraded++
		}
		entities = append(entities, seg.Entities...)
		topics = append(topics, seg.Topics...)
	}
	info.Entities = models.NormalizeSet(entities)
	info.Topics = models.NormalizeSet(topics)
	info.URL = SegmentURL(info.Source, videoID, 0)
	return info, nil
}
