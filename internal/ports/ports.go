package ports

import (
	"context"
	"time"
)

// PlayerState is the playback state reported by MPD.
type PlayerState string

// States as spelled by the MPD status command.
const (
	StateStopped PlayerState = "stop"
	StatePaused  PlayerState = "pause"
	StatePlaying PlayerState = "play"
)

// EventPlayer is the idle subsystem raised on playback changes.
const EventPlayer = "player"

// Status is one status poll of the daemon.
type Status struct {
	State   PlayerState
	SongID  string
	Elapsed float64
	Total   float64
}

// Entry is a playlist entry with its path already resolved.
type Entry struct {
	ID   string
	Path string
}

// Daemon is the retrying view of MPD used by the event loop.
type Daemon interface {
	// Idle blocks until MPD reports changed subsystems. ok is false when
	// the wait was interrupted by cancellation.
	Idle(ctx context.Context) (events []string, ok bool, err error)
	Status(ctx context.Context) (Status, error)
	Playlist(ctx context.Context) ([]Entry, error)
}

// Catalog looks up library items by absolute path.
type Catalog interface {
	FindByPath(ctx context.Context, path string) (Item, error)
}

// Item is a library entry with typed listening statistics. Getters return
// the documented default when the attribute is unset.
type Item interface {
	ID() int64
	Path() string
	PlayCount() int64
	SkipCount() int64
	Rating() float64
	LastPlayed() (time.Time, bool)
	SetPlayCount(n int64)
	SetSkipCount(n int64)
	SetRating(r float64)
	SetLastPlayed(t time.Time)
	// Persist makes pending attribute changes durable.
	Persist(ctx context.Context) error
}

// Clock returns the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// Publisher fans tracker events out to interested listeners.
type Publisher interface {
	Publish(ctx context.Context, eventType string, body any) error
}

// IDGen returns unique event IDs.
type IDGen interface {
	NewID() string
}
