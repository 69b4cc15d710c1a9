package core

import (
	"strings"
	"time"

	"github.com/holms/mpdstats/internal/ports"
)

// PlayedTolerance is how far the real listening time may drift from the
// track's remaining length and still count as a full play.
const PlayedTolerance = 10 * time.Second

// DefaultStreamSchemes are path prefixes treated as remote streams.
var DefaultStreamSchemes = []string{"http://", "https://", "mms://", "mmsh://", "rtsp://", "rtmp://", "ftp://", "smb://", "nfs://"}

// Verdict classifies a retired session.
type Verdict int

const (
	Played Verdict = iota
	Skipped
)

func (v Verdict) String() string {
	if v == Skipped {
		return "skipped"
	}
	return "played"
}

// Session records what is playing and since when. Sessions are values and
// are replaced, never edited, on a transition.
type Session struct {
	Path              string
	StartedAt         time.Time
	ExpectedRemaining time.Duration
	// Item is nil when the catalog has no entry for Path.
	Item ports.Item
}

// Judge decides whether the session ran to completion at now.
func (s Session) Judge(now time.Time) (Verdict, time.Duration) {
	diff := s.ExpectedRemaining - now.Sub(s.StartedAt)
	if diff < 0 {
		diff = -diff
	}
	if diff < PlayedTolerance {
		return Played, diff
	}
	return Skipped, diff
}

// IsStreamURL reports whether path begins with one of the stream schemes.
func IsStreamURL(path string, schemes []string) bool {
	if len(schemes) == 0 {
		schemes = DefaultStreamSchemes
	}
	lower := strings.ToLower(path)
	for _, scheme := range schemes {
		if strings.HasPrefix(lower, strings.ToLower(scheme)) {
			return true
		}
	}
	return false
}
