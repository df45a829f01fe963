package resolver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Result is one decoded yt-dlp metadata document. It is one of *Video,
// *Playlist or *SearchResults.
type Result interface {
	kind() string
}

type Video struct {
	ID       string
	Title    string
	URL      string
	Uploader string
	Duration time.Duration
	IsLive   bool
}

type Playlist struct {
	ID      string
	Title   string
	URL     string
	Entries []Video
}

type SearchResults struct {
	Query   string
	Entries []Video
}

func (*Video) kind() string         { return "video" }
func (*Playlist) kind() string      { return "playlist" }
func (*SearchResults) kind() string { return "search" }

type rawInfo struct {
	Type         string    `json:"_type"`
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	WebpageURL   string    `json:"webpage_url"`
	Uploader     string    `json:"uploader"`
	Channel      string    `json:"channel"`
	Duration     float64   `json:"duration"`
	IsLive       bool      `json:"is_live"`
	Extractor    string    `json:"extractor"`
	ExtractorKey string    `json:"extractor_key"`
	Entries      []rawInfo `json:"entries"`
}

func (r rawInfo) video() Video {
	link := r.WebpageURL
	if link == "" {
		link = r.URL
	}
	uploader := r.Uploader
	if uploader == "" {
		uploader = r.Channel
	}
	return Video{
		ID:       r.ID,
		Title:    r.Title,
		URL:      link,
		Uploader: uploader,
		Duration: time.Duration(r.Duration * float64(time.Second)),
		IsLive:   r.IsLive,
	}
}

func (r rawInfo) isSearch() bool {
	return strings.HasSuffix(r.Extractor, ":search") ||
		strings.HasSuffix(r.ExtractorKey, "Search") ||
		strings.HasPrefix(r.ID, "ytsearch")
}

// Parse decodes the first JSON document of yt-dlp output and returns the
// tagged result. Unknown or missing `_type` values fail closed.
func Parse(out []byte) (Result, error) {
	var raw rawInfo
	if err := json.NewDecoder(bytes.NewReader(out)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("no output")
		}
		return nil, fmt.Errorf("decode yt-dlp json: %w", err)
	}

	switch raw.Type {
	case "video":
		v := raw.video()
		return &v, nil
	case "playlist":
		entries := make([]Video, 0, len(raw.Entries))
		for _, e := range raw.Entries {
			v := e.video()
			if v.URL == "" {
				continue
			}
			entries = append(entries, v)
		}
		if raw.isSearch() {
			return &SearchResults{Query: raw.Title, Entries: entries}, nil
		}
		return &Playlist{ID: raw.ID, Title: raw.Title, URL: raw.WebpageURL, Entries: entries}, nil
	case "":
		return nil, fmt.Errorf("result has no _type")
	default:
		return nil, fmt.Errorf("unsupported result type %q", raw.Type)
	}
}
