package source

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/vidrag/internal/models"
	"github.com/raphaelgruber/vidrag/internal/parser"
)

// File reads SRT, WebVTT or JSON transcripts from disk.
type File struct {
	// VideoID overrides the id derived from the file name.
	VideoID string
	Title   string
	// Duration in seconds, 0 when unknown.
	Duration float64
}

// Fetch parses the transcript at path.
func (f File) Fetch(ctx context.Context, path string) (models.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return models.Transcript{}, err
	}
	entries, err := parser.ParseTranscriptFile(path)
	if err != nil {
		return models.Transcript{}, err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	t := models.Transcript{
		VideoID:  f.VideoID,
		Title:    f.Title,
		Source:   string(KindFile),
		Duration: f.Duration,
		Entries:  entries,
	}
	if t.VideoID == "" {
		t.VideoID = base
	}
	if t.Title == "" {
		t.Title = base
	}
	return t, nil
}
