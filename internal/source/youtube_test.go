package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const captionsXML = `<?xml version="1.0" encoding="utf-8" ?>
<transcript>
<text start="0" dur="4.2">Welcome back</text>
<text start="10.5" dur="3">Elon Musk talks about &amp;#39;Starship&amp;#39;</text>
<text start="12" dur="1">   </text>
<text start="35.25" dur="5">the   launch window</text>
</transcript>`

func newTestYouTube(t *testing.T, captions http.HandlerFunc, api http.HandlerFunc) *YouTube {
	t.Helper()
	ctx := context.Background()

	capSrv := httptest.NewServer(captions)
	t.Cleanup(capSrv.Close)

	y, err := NewYouTube(ctx, "")
	require.NoError(t, err)
	y.WithTimedTextURL(capSrv.URL)

	if api != nil {
		apiSrv := httptest.NewServer(api)
		t.Cleanup(apiSrv.Close)
		svc, err := youtube.NewService(ctx,
			option.WithEndpoint(apiSrv.URL+"/"),
			option.WithHTTPClient(apiSrv.Client()),
		)
		require.NoError(t, err)
		y.WithService(svc)
	}
	return y
}

func TestYouTube_Fetch(t *testing.T) {
	var gotQuery string
	y := newTestYouTube(t,
		func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			fmt.Fprint(w, captionsXML)
		},
		func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/videos") {
				http.NotFound(w, r)
				return
			}
			assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("id"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"items":[{"id":"dQw4w9WgXcQ","snippet":{"title":"Starship update"},"contentDetails":{"duration":"PT1M35S"}}]}`)
		},
	)

	tr, err := y.Fetch(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42")
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "v=dQw4w9WgXcQ")
	assert.Contains(t, gotQuery, "lang=en")
	assert.Equal(t, "dQw4w9WgXcQ", tr.VideoID)
	assert.Equal(t, "youtube", tr.Source)
	assert.Equal(t, "Starship update", tr.Title)
	assert.Equal(t, 95.0, tr.Duration)

	require.Len(t, tr.Entries, 3, "blank captions are skipped")
	assert.Equal(t, "Welcome back", tr.Entries[0].Text)
	assert.Equal(t, "Elon Musk talks about 'Starship'", tr.Entries[1].Text)
	assert.Equal(t, 35.25, tr.Entries[2].Timestamp)
	assert.Equal(t, "the launch window", tr.Entries[2].Text)
}

func TestYouTube_MetadataFailureIsNotFatal(t *testing.T) {
	y := newTestYouTube(t,
		func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, captionsXML) },
		func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":{"code":403,"message":"quota"}}`, http.StatusForbidden)
		},
	)

	tr, err := y.Fetch(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Empty(t, tr.Title)
	assert.Zero(t, tr.Duration)
	assert.Len(t, tr.Entries, 3)
}

func TestYouTube_TranscriptUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"empty body", func(http.ResponseWriter, *http.Request) {}},
		{"not found", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }},
		{"no cues", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "<transcript></transcript>") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := newTestYouTube(t, tt.handler, nil)
			_, err := y.Fetch(context.Background(), "dQw4w9WgXcQ")
			assert.ErrorIs(t, err, ErrTranscriptUnavailable)
		})
	}
}

func TestYouTube_ServerError(t *testing.T) {
	y := newTestYouTube(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, nil)

	_, err := y.Fetch(context.Background(), "dQw4w9WgXcQ")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTranscriptUnavailable)
	assert.Contains(t, err.Error(), "status 500")
}

func TestExtractYouTubeID(t *testing.T) {
	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{ref: "dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{ref: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{ref: "https://youtu.be/dQw4w9WgXcQ?t=30", want: "dQw4w9WgXcQ"},
		{ref: "https://www.youtube.com/embed/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{ref: "https://youtube.com/shorts/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{ref: "https://www.youtube.com/watch?v=short", wantErr: true},
		{ref: "https://vimeo.com/12345", wantErr: true},
		{ref: "not an id", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := ExtractYouTubeID(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
