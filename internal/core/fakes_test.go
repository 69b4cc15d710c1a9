package core

import (
	"context"
	"time"

	"github.com/holms/mpdstats/internal/ports"
)

type fakeItem struct {
	id         int64
	path       string
	playCount  int64
	skipCount  int64
	rating     float64
	hasRating  bool
	lastPlayed time.Time
	persists   int
}

func (i *fakeItem) ID() int64        { return i.id }
func (i *fakeItem) Path() string     { return i.path }
func (i *fakeItem) PlayCount() int64 { return i.playCount }
func (i *fakeItem) SkipCount() int64 { return i.skipCount }
func (i *fakeItem) Rating() float64 {
	if !i.hasRating {
		return DefaultRating
	}
	return i.rating
}
func (i *fakeItem) LastPlayed() (time.Time, bool) { return i.lastPlayed, !i.lastPlayed.IsZero() }
func (i *fakeItem) SetPlayCount(n int64)          { i.playCount = n }
func (i *fakeItem) SetSkipCount(n int64)          { i.skipCount = n }
func (i *fakeItem) SetRating(r float64) {
	i.rating = r
	i.hasRating = true
}
func (i *fakeItem) SetLastPlayed(t time.Time) { i.lastPlayed = t }
func (i *fakeItem) Persist(context.Context) error {
	i.persists++
	return nil
}

type fakeCatalog struct {
	items   map[string]*fakeItem
	lookups []string
}

func newFakeCatalog(items ...*fakeItem) *fakeCatalog {
	c := &fakeCatalog{items: map[string]*fakeItem{}}
	for _, item := range items {
		c.items[item.path] = item
	}
	return c
}

func (c *fakeCatalog) FindByPath(_ context.Context, path string) (ports.Item, error) {
	c.lookups = append(c.lookups, path)
	item, ok := c.items[path]
	if !ok {
		return nil, ErrNotFound
	}
	return item, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type publishedEvent struct {
	eventType string
	body      any
}

type fakePublisher struct {
	events []publishedEvent
}

func (p *fakePublisher) Publish(_ context.Context, eventType string, body any) error {
	p.events = append(p.events, publishedEvent{eventType: eventType, body: body})
	return nil
}

func (p *fakePublisher) ofType(eventType string) []publishedEvent {
	out := []publishedEvent{}
	for _, event := range p.events {
		if event.eventType == eventType {
			out = append(out, event)
		}
	}
	return out
}

type idleResult struct {
	events []string
	ok     bool
	err    error
}

type statusResult struct {
	status ports.Status
	err    error
}

// fakeDaemon replays scripted results. An exhausted idle script reports an
// interrupted wait.
type fakeDaemon struct {
	idles     []idleResult
	statuses  []statusResult
	playlist  []ports.Entry
	calls     []string
	onIdle    func()
	playlistE error
}

func (d *fakeDaemon) Idle(context.Context) ([]string, bool, error) {
	d.calls = append(d.calls, "idle")
	if d.onIdle != nil {
		d.onIdle()
	}
	if len(d.idles) == 0 {
		return nil, false, nil
	}
	next := d.idles[0]
	d.idles = d.idles[1:]
	return next.events, next.ok, next.err
}

func (d *fakeDaemon) Status(context.Context) (ports.Status, error) {
	d.calls = append(d.calls, "status")
	if len(d.statuses) == 0 {
		return ports.Status{State: ports.StateStopped}, nil
	}
	next := d.statuses[0]
	d.statuses = d.statuses[1:]
	return next.status, next.err
}

func (d *fakeDaemon) Playlist(context.Context) ([]ports.Entry, error) {
	d.calls = append(d.calls, "playlist")
	return d.playlist, d.playlistE
}

func playerEvent() idleResult {
	return idleResult{events: []string{ports.EventPlayer}, ok: true}
}
