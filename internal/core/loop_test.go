package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/holms/mpdstats/internal/ports"
)

func newTestLoop(daemon *fakeDaemon, catalog *fakeCatalog, clock *fakeClock) (*Loop, *Tracker) {
	tracker := newTestTracker(catalog, clock, &fakePublisher{}, true)
	return NewLoop(zap.NewNop(), daemon, tracker), tracker
}

func TestLoopStartupReadsStatusBeforeWaiting(t *testing.T) {
	a := &fakeItem{id: 1, path: "/music/a.flac"}
	daemon := &fakeDaemon{
		statuses: []statusResult{{status: ports.Status{State: ports.StatePlaying, SongID: "7", Elapsed: 0, Total: 200}}},
		playlist: []ports.Entry{{ID: "7", Path: "/music/a.flac"}},
	}
	loop, tracker := newTestLoop(daemon, newFakeCatalog(a), &fakeClock{now: time.Unix(1_700_000_000, 0)})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"status", "playlist", "idle"}
	if !reflect.DeepEqual(daemon.calls, want) {
		t.Fatalf("calls = %v, want %v", daemon.calls, want)
	}
	if session, ok := tracker.Current(); !ok || session.Path != a.path {
		t.Fatalf("expected session established on startup")
	}
}

func TestLoopJudgesSongChangeAcrossEvents(t *testing.T) {
	a := &fakeItem{id: 1, path: "/music/a.flac"}
	b := &fakeItem{id: 2, path: "/music/b.flac"}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	daemon := &fakeDaemon{
		idles: []idleResult{playerEvent()},
		statuses: []statusResult{
			{status: ports.Status{State: ports.StatePlaying, SongID: "1", Total: 180}},
			{status: ports.Status{State: ports.StatePlaying, SongID: "2", Total: 240}},
		},
		playlist: []ports.Entry{{ID: "1", Path: a.path}, {ID: "2", Path: b.path}},
	}
	daemon.onIdle = func() { clock.advance(178 * time.Second) }
	loop, _ := newTestLoop(daemon, newFakeCatalog(a, b), clock)

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if a.playCount != 1 {
		t.Fatalf("expected a played once, got %d", a.playCount)
	}
}

func TestLoopStopsOnInterruptedIdle(t *testing.T) {
	daemon := &fakeDaemon{
		idles: []idleResult{{ok: false}, playerEvent()},
	}
	loop, _ := newTestLoop(daemon, newFakeCatalog(), &fakeClock{now: time.Unix(0, 0)})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"status", "idle"}
	if !reflect.DeepEqual(daemon.calls, want) {
		t.Fatalf("calls = %v, want %v", daemon.calls, want)
	}
}

func TestLoopStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	daemon := &fakeDaemon{
		idles: []idleResult{playerEvent(), playerEvent()},
	}
	daemon.onIdle = cancel
	loop, _ := newTestLoop(daemon, newFakeCatalog(), &fakeClock{now: time.Unix(0, 0)})

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	// events returned by a cancelled wait are dropped
	want := []string{"status", "idle"}
	if !reflect.DeepEqual(daemon.calls, want) {
		t.Fatalf("calls = %v, want %v", daemon.calls, want)
	}
}

func TestLoopRetryExhaustedIsFatal(t *testing.T) {
	exhausted := WrapError(ExitRetry, "status failed", ErrRetryExhausted)
	daemon := &fakeDaemon{
		idles:    []idleResult{playerEvent(), playerEvent()},
		statuses: []statusResult{{status: ports.Status{State: ports.StateStopped}}, {err: exhausted}},
	}
	loop, _ := newTestLoop(daemon, newFakeCatalog(), &fakeClock{now: time.Unix(0, 0)})

	err := loop.Run(context.Background())
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected retry exhausted, got %v", err)
	}
	want := []string{"status", "idle", "status"}
	if !reflect.DeepEqual(daemon.calls, want) {
		t.Fatalf("polling continued after fatal error: %v", daemon.calls)
	}
}

func TestLoopIdleErrorIsFatal(t *testing.T) {
	daemon := &fakeDaemon{
		idles: []idleResult{{err: ErrRetryExhausted}},
	}
	loop, _ := newTestLoop(daemon, newFakeCatalog(), &fakeClock{now: time.Unix(0, 0)})

	if err := loop.Run(context.Background()); !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected retry exhausted, got %v", err)
	}
}

func TestLoopSkipsEmptyPlaylist(t *testing.T) {
	daemon := &fakeDaemon{
		statuses: []statusResult{{status: ports.Status{State: ports.StatePlaying, SongID: "1", Total: 100}}},
	}
	loop, tracker := newTestLoop(daemon, newFakeCatalog(), &fakeClock{now: time.Unix(0, 0)})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := tracker.Current(); ok {
		t.Fatalf("empty playlist must not start a session")
	}
}

func TestLoopSkipsUnknownSongID(t *testing.T) {
	daemon := &fakeDaemon{
		statuses: []statusResult{{status: ports.Status{State: ports.StatePlaying, SongID: "9", Total: 100}}},
		playlist: []ports.Entry{{ID: "1", Path: "/music/a.flac"}},
	}
	loop, tracker := newTestLoop(daemon, newFakeCatalog(), &fakeClock{now: time.Unix(0, 0)})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := tracker.Current(); ok {
		t.Fatalf("unknown song id must not start a session")
	}
}

func TestLoopIgnoresUnexpectedState(t *testing.T) {
	a := &fakeItem{id: 1, path: "/music/a.flac"}
	daemon := &fakeDaemon{
		idles: []idleResult{playerEvent()},
		statuses: []statusResult{
			{status: ports.Status{State: ports.StatePlaying, SongID: "1", Total: 100}},
			{status: ports.Status{State: "buffering"}},
		},
		playlist: []ports.Entry{{ID: "1", Path: a.path}},
	}
	loop, tracker := newTestLoop(daemon, newFakeCatalog(a), &fakeClock{now: time.Unix(0, 0)})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if session, ok := tracker.Current(); !ok || session.Path != a.path {
		t.Fatalf("unexpected state changed the session")
	}
}

func TestLoopIgnoresNonPlayerEvents(t *testing.T) {
	daemon := &fakeDaemon{
		idles: []idleResult{{events: []string{"mixer", "options"}, ok: true}},
	}
	loop, _ := newTestLoop(daemon, newFakeCatalog(), &fakeClock{now: time.Unix(0, 0)})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"status", "idle", "idle"}
	if !reflect.DeepEqual(daemon.calls, want) {
		t.Fatalf("calls = %v, want %v", daemon.calls, want)
	}
}
