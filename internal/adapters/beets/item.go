package beets

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/holms/mpdstats/internal/core"
)

// Item is a catalog entry with its statistic attributes loaded. Setters
// only mark values dirty; Persist writes them.
type Item struct {
	catalog *Catalog
	id      int64
	path    string
	attrs   map[string]string
	dirty   map[string]bool
}

func (i *Item) ID() int64    { return i.id }
func (i *Item) Path() string { return i.path }

func (i *Item) PlayCount() int64 { return parseCount(i.attrs[KeyPlayCount]) }
func (i *Item) SkipCount() int64 { return parseCount(i.attrs[KeySkipCount]) }

// Rating returns the stored rating clamped to [0,1], or the default when
// unset or unreadable.
func (i *Item) Rating() float64 {
	raw, ok := i.attrs[KeyRating]
	if !ok {
		return core.DefaultRating
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) {
		return core.DefaultRating
	}
	return core.ClampRating(value)
}

// LastPlayed returns the stored unix timestamp, which beets keeps as a
// float.
func (i *Item) LastPlayed() (time.Time, bool) {
	raw, ok := i.attrs[KeyLastPlayed]
	if !ok {
		return time.Time{}, false
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || secs <= 0 {
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)), true
}

func (i *Item) SetPlayCount(n int64) { i.set(KeyPlayCount, strconv.FormatInt(n, 10)) }
func (i *Item) SetSkipCount(n int64) { i.set(KeySkipCount, strconv.FormatInt(n, 10)) }

func (i *Item) SetRating(r float64) {
	i.set(KeyRating, strconv.FormatFloat(core.ClampRating(r), 'f', -1, 64))
}

func (i *Item) SetLastPlayed(t time.Time) {
	i.set(KeyLastPlayed, strconv.FormatFloat(float64(t.UnixMilli())/1000, 'f', -1, 64))
}

func (i *Item) set(key, value string) {
	i.attrs[key] = value
	i.dirty[key] = true
}

// Persist writes dirty attributes in one transaction.
func (i *Item) Persist(ctx context.Context) error {
	if len(i.dirty) == 0 {
		return nil
	}
	values := make(map[string]string, len(i.dirty))
	for key := range i.dirty {
		values[key] = i.attrs[key]
	}
	if err := i.catalog.store(ctx, i.id, values); err != nil {
		return err
	}
	i.dirty = map[string]bool{}
	return nil
}

// parseCount accepts integers and the float spelling older plugin
// versions wrote ("3.0").
func parseCount(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return max(n, 0)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || f < 0 {
		return 0
	}
	return int64(f)
}
