// Package source fetches transcripts from the supported content sources.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/raphaelgruber/vidrag/internal/models"
)

// Kind tags a content source.
type Kind string

const (
	KindYouTube   Kind = "youtube"
	KindFile      Kind = "file"
	KindTwitter   Kind = "twitter"
	KindInstagram Kind = "instagram"
)

var (
	// ErrUnsupportedSource indicates a recognised source kind without a fetcher.
	ErrUnsupportedSource = errors.New("unsupported source")

	// ErrTranscriptUnavailable indicates the source has no transcript for the video.
	ErrTranscriptUnavailable = errors.New("transcript unavailable")
)

// ParseKind validates a user supplied kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindYouTube, KindFile, KindTwitter, KindInstagram:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedSource, s)
}

// Detect guesses the kind of a reference from its URL host. Anything that is
// not a recognised URL is treated as a local file.
func Detect(ref string) Kind {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		if looksLikeYouTubeID(ref) {
			return KindYouTube
		}
		return KindFile
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	switch host {
	case "youtube.com", "youtu.be", "music.youtube.com":
		return KindYouTube
	case "twitter.com", "x.com":
		return KindTwitter
	case "instagram.com":
		return KindInstagram
	}
	return KindFile
}

// Fetcher turns a reference (URL, id or path) into a transcript.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (models.Transcript, error)
}

// Sources dispatches to the fetcher registered for each kind.
type Sources struct {
	fetchers map[Kind]Fetcher
}

// NewSources creates an empty dispatcher.
func NewSources() *Sources {
	return &Sources{fetchers: make(map[Kind]Fetcher)}
}

// Register installs f for kind.
func (s *Sources) Register(kind Kind, f Fetcher) *Sources {
	s.fetchers[kind] = f
	return s
}

// Fetch loads ref with the fetcher for kind. An empty kind is detected from ref.
func (s *Sources) Fetch(ctx context.Context, kind Kind, ref string) (models.Transcript, error) {
	if kind == "" {
		kind = Detect(ref)
	}
	f, ok := s.fetchers[kind]
	if !ok {
		return models.Transcript{}, fmt.Errorf("%w: %s", ErrUnsupportedSource, kind)
	}
	t, err := f.Fetch(ctx, ref)
	if err != nil {
		return models.Transcript{}, fmt.Errorf("fetch %s %s: %w", kind, ref, err)
	}
	if t.Source == "" {
		t.Source = string(kind)
	}
	return t, nil
}
