package core

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/holms/mpdstats/internal/ports"
)

// Loop waits for daemon events and feeds player changes to the tracker.
type Loop struct {
	log     *zap.Logger
	daemon  ports.Daemon
	tracker *Tracker
}

// NewLoop creates the event loop.
func NewLoop(log *zap.Logger, daemon ports.Daemon, tracker *Tracker) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{log: log, daemon: daemon, tracker: tracker}
}

// Run processes events until ctx is cancelled or a daemon call fails
// fatally. The first tick reads the current status without waiting.
func (l *Loop) Run(ctx context.Context) error {
	startup := true
	for ctx.Err() == nil {
		var events []string
		if startup {
			events = []string{ports.EventPlayer}
			startup = false
		} else {
			received, ok, err := l.daemon.Idle(ctx)
			if err != nil {
				return stopOrFail(err)
			}
			if !ok {
				l.log.Info("idle interrupted, stopping")
				return nil
			}
			l.log.Debug("events", zap.Strings("events", received))
			events = received
		}

		if !containsEvent(events, ports.EventPlayer) {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := l.handlePlayer(ctx); err != nil {
			return stopOrFail(err)
		}
	}
	return nil
}

func (l *Loop) handlePlayer(ctx context.Context) error {
	status, err := l.daemon.Status(ctx)
	if err != nil {
		return err
	}

	switch status.State {
	case ports.StateStopped:
		l.tracker.Stopped(ctx)
	case ports.StatePaused:
		l.tracker.Paused(ctx)
	case ports.StatePlaying:
		playlist, err := l.daemon.Playlist(ctx)
		if err != nil {
			return err
		}
		if len(playlist) == 0 {
			l.log.Debug("empty playlist while playing, skipping tick")
			return nil
		}
		path, ok := entryPath(playlist, status.SongID)
		if !ok {
			l.log.Warn("current song not in playlist", zap.String("songid", status.SongID))
			return nil
		}
		l.tracker.Playing(ctx, path, status.Elapsed, status.Total)
	default:
		l.log.Info("status", zap.String("state", string(status.State)), zap.String("songid", status.SongID))
	}
	return nil
}

func stopOrFail(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func containsEvent(events []string, name string) bool {
	for _, event := range events {
		if event == name {
			return true
		}
	}
	return false
}

func entryPath(playlist []ports.Entry, id string) (string, bool) {
	for _, entry := range playlist {
		if entry.ID == id {
			return entry.Path, true
		}
	}
	return "", false
}
