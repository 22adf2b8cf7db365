// Package renderer wraps a discovered device in a playback session.
//
// The UPnP AVTransport and RenderingControl calls are made by an external
// Client; this package owns the connection lifecycle around it and the
// small conversions (volume scaling, clock parsing, content types) the
// Player methods need.
package renderer

import (
	"context"
	"errors"
	"mime"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// DefaultContentType is used when a media URL has no recognised extension.
const DefaultContentType = "video/mp4"

// DefaultMaxVolume is the RenderingControl volume scale until detected.
const DefaultMaxVolume = 100

var (
	// ErrClosed is returned by a Session after Close.
	ErrClosed = errors.New("renderer session closed")

	// ErrNotConnected is returned by transport controls before any media
	// has been loaded.
	ErrNotConnected = errors.New("renderer not connected")
)

// Player is the capability set offered for a discovered renderer.
type Player interface {
	Play(ctx context.Context, mediaURL string, opts PlayOptions) error
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, seconds int) error
	SetVolume(ctx context.Context, level float64) error
	Volume(ctx context.Context) (float64, error)
	Status(ctx context.Context) (Status, error)
}

// PlayOptions tunes Play. The zero value autoplays with an inferred type.
type PlayOptions struct {
	ContentType  string
	Title        string
	Subtitles    []string
	Seek         int
	NoAutoPlay   bool
	DLNAFeatures string
}

// Media is what Client.Load receives.
type Media struct {
	ContentType  string
	AutoPlay     bool
	Title        string
	Kind         string
	SubtitlesURL string
	DLNAFeatures string
}

// Status is the last known playback state.
type Status struct {
	PlayerState string  `json:"playerState,omitempty"`
	CurrentTime int     `json:"currentTime"`
	Volume      float64 `json:"volume"`
}

// Client is the media-control collaborator bound to one description
// location. Done is closed when the client's connection ends.
type Client interface {
	Load(ctx context.Context, mediaURL string, media Media) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, seconds int) error
	CallAction(ctx context.Context, service, action string, args map[string]string) (map[string]string, error)
	Done() <-chan struct{}
	Close() error
}

// Dialer creates a Client for a description location.
type Dialer func(ctx context.Context, location string) (Client, error)

// mediaTypes covers media extensions the platform MIME table may lack.
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
}

// ContentTypeFor infers a MIME type from the URL path extension.
func ContentTypeFor(mediaURL string) string {
	p := mediaURL
	if u, err := url.Parse(mediaURL); err == nil {
		p = u.Path
	}
	if ext := strings.ToLower(path.Ext(p)); ext != "" {
		if t, ok := mediaTypes[ext]; ok {
			return t
		}
		if t := mime.TypeByExtension(ext); t != "" {
			if i := strings.IndexByte(t, ';'); i >= 0 {
				t = t[:i]
			}
			return t
		}
	}
	return DefaultContentType
}

// ParseClock converts an "h:mm:ss" position into seconds. Fractions are
// truncated; anything without a colon is 0.
func ParseClock(clock string) int {
	if !strings.Contains(clock, ":") {
		return 0
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0
	}

	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	s, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}
	return h*3600 + m*60 + int(s)
}
