package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/raphaelgruber/vidrag/internal/models"
)

// DefaultTimedTextURL serves public caption tracks as XML.
const DefaultTimedTextURL = "https://video.google.com/timedtext"

// YouTube fetches captions from the timedtext endpoint and, when an API key
// is configured, title and duration from the Data API.
type YouTube struct {
	service      *youtube.Service
	httpClient   *http.Client
	timedTextURL string
	lang         string
}

// NewYouTube creates a fetcher. An empty apiKey disables metadata lookups.
func NewYouTube(ctx context.Context, apiKey string) (*YouTube, error) {
	y := &YouTube{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		timedTextURL: DefaultTimedTextURL,
		lang:         "en",
	}
	if apiKey != "" {
		svc, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
		if err != nil {
			return nil, fmt.Errorf("youtube service: %w", err)
		}
		y.service = svc
	}
	return y, nil
}

// WithService replaces the Data API client.
func (y *YouTube) WithService(svc *youtube.Service) *YouTube {
	y.service = svc
	return y
}

// WithTimedTextURL points caption requests at another endpoint.
func (y *YouTube) WithTimedTextURL(u string) *YouTube {
	y.timedTextURL = u
	return y
}

// WithLanguage selects the caption track language.
func (y *YouTube) WithLanguage(lang string) *YouTube {
	y.lang = lang
	return y
}

// Fetch loads the transcript of a video URL or id.
func (y *YouTube) Fetch(ctx context.Context, ref string) (models.Transcript, error) {
	id, err := ExtractYouTubeID(ref)
	if err != nil {
		return models.Transcript{}, err
	}

	t := models.Transcript{VideoID: id, Source: string(KindYouTube)}
	if y.service != nil {
		title, dur, err := y.metadata(ctx, id)
		if err != nil {
			// Captions alone are enough to ingest.
			slog.Warn("youtube metadata lookup failed", "video_id", id, "error", err)
		} else {
			t.Title = title
			t.Duration = dur
		}
	}

	t.Entries, err = y.captions(ctx, id)
	if err != nil {
		return models.Transcript{}, err
	}
	return t, nil
}

func (y *YouTube) metadata(ctx context.Context, id string) (string, float64, error) {
	resp, err := y.service.Videos.
		List([]string{"snippet", "contentDetails"}).
		Id(id).
		Context(ctx).
		Do()
	if err != nil {
		return "", 0, fmt.Errorf("videos.list: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", 0, fmt.Errorf("video %s not found", id)
	}

	item := resp.Items[0]
	var title string
	if item.Snippet != nil {
		title = item.Snippet.Title
	}
	var seconds float64
	if item.ContentDetails != nil && item.ContentDetails.Duration != "" {
		d, err := duration.Parse(item.ContentDetails.Duration)
		if err != nil {
			return "", 0, fmt.Errorf("parse duration %q: %w", item.ContentDetails.Duration, err)
		}
		seconds = d.ToTimeDuration().Seconds()
	}
	return title, seconds, nil
}

type timedText struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

func (y *YouTube) captions(ctx context.Context, id string) ([]models.TranscriptEntry, error) {
	q := url.Values{"v": {id}, "lang": {y.lang}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.timedTextURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch captions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrTranscriptUnavailable, id)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch captions: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read captions: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTranscriptUnavailable, id)
	}

	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("decode captions: %w", err)
	}

	entries := make([]models.TranscriptEntry, 0, len(tt.Texts))
	for _, c := range tt.Texts {
		start, err := strconv.ParseFloat(c.Start, 64)
		if err != nil {
			return nil, fmt.Errorf("decode captions: start %q: %w", c.Start, err)
		}
		text := strings.Join(strings.Fields(html.UnescapeString(c.Body)), " ")
		if text == "" {
			continue
		}
		entries = append(entries, models.TranscriptEntry{Timestamp: start, Text: text})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTranscriptUnavailable, id)
	}
	return entries, nil
}

// ExtractYouTubeID accepts watch, short, embed and shorts URLs or a bare id.
func ExtractYouTubeID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if looksLikeYouTubeID(ref) {
		return ref, nil
	}

	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("not a youtube url or id: %q", ref)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	var id string
	switch {
	case host == "youtu.be":
		id = strings.Trim(u.Path, "/")
	case strings.HasSuffix(host, "youtube.com"):
		if v := u.Query().Get("v"); v != "" {
			id = v
		} else {
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) == 2 && (parts[0] == "embed" || parts[0] == "shorts" || parts[0] == "live") {
				id = parts[1]
			}
		}
	}
	if !looksLikeYouTubeID(id) {
		return "", fmt.Errorf("not a youtube url or id: %q", ref)
	}
	return id, nil
}

func looksLikeYouTubeID(s string) bool {
	if len(s) != 11 {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}
