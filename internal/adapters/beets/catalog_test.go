package beets

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/holms/mpdstats/internal/core"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = catalog.Close() })
	return catalog
}

func TestFindByPathMissing(t *testing.T) {
	catalog := openTestCatalog(t)
	if _, err := catalog.FindByPath(context.Background(), "/music/none.flac"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestItemDefaults(t *testing.T) {
	catalog := openTestCatalog(t)
	ctx := context.Background()
	if _, err := catalog.Add(ctx, "/music/a.flac"); err != nil {
		t.Fatalf("add: %v", err)
	}

	item, err := catalog.FindByPath(ctx, "/music/a.flac")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if item.PlayCount() != 0 || item.SkipCount() != 0 {
		t.Fatalf("expected zero counts")
	}
	if item.Rating() != core.DefaultRating {
		t.Fatalf("rating = %v, want default", item.Rating())
	}
	if _, ok := item.LastPlayed(); ok {
		t.Fatalf("expected unset last_played")
	}
}

func TestPersistRoundTrip(t *testing.T) {
	catalog := openTestCatalog(t)
	ctx := context.Background()
	path := "/music/Ünïcode/ß.flac"
	if _, err := catalog.Add(ctx, path); err != nil {
		t.Fatalf("add: %v", err)
	}

	item, err := catalog.FindByPath(ctx, path)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	when := time.Unix(1_700_000_000, 500_000_000)
	item.SetPlayCount(4)
	item.SetSkipCount(1)
	item.SetRating(0.736)
	item.SetLastPlayed(when)
	if err := item.Persist(ctx); err != nil {
		t.Fatalf("persist: %v", err)
	}
	item.SetPlayCount(5)
	if err := item.Persist(ctx); err != nil {
		t.Fatalf("persist update: %v", err)
	}

	reloaded, err := catalog.FindByPath(ctx, path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Path() != path {
		t.Fatalf("path = %q", reloaded.Path())
	}
	if reloaded.PlayCount() != 5 || reloaded.SkipCount() != 1 {
		t.Fatalf("counts = %d/%d", reloaded.PlayCount(), reloaded.SkipCount())
	}
	if math.Abs(reloaded.Rating()-0.736) > 1e-9 {
		t.Fatalf("rating = %v", reloaded.Rating())
	}
	last, ok := reloaded.LastPlayed()
	if !ok || last.UnixMilli() != when.UnixMilli() {
		t.Fatalf("last_played = %v", last)
	}

	var rows int
	if err := catalog.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM item_attributes WHERE entity_id = ?`, reloaded.ID()).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 4 {
		t.Fatalf("expected one row per attribute, got %d", rows)
	}
}

func TestLenientAttributeParsing(t *testing.T) {
	catalog := openTestCatalog(t)
	ctx := context.Background()
	id, err := catalog.Add(ctx, "/music/old.mp3")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := catalog.store(ctx, id, map[string]string{
		KeyPlayCount: "3.0",
		KeySkipCount: "garbage",
		KeyRating:    "1.7",
	}); err != nil {
		t.Fatalf("store: %v", err)
	}

	item, err := catalog.FindByPath(ctx, "/music/old.mp3")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if item.PlayCount() != 3 {
		t.Fatalf("play_count = %d, want 3", item.PlayCount())
	}
	if item.SkipCount() != 0 {
		t.Fatalf("skip_count = %d, want 0", item.SkipCount())
	}
	if item.Rating() != 1 {
		t.Fatalf("rating = %v, want clamped 1", item.Rating())
	}
}

func TestFindByPathMatchesTextPaths(t *testing.T) {
	catalog := openTestCatalog(t)
	ctx := context.Background()
	if _, err := catalog.db.ExecContext(ctx, `INSERT INTO items (path) VALUES (?)`, "/music/text.flac"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := catalog.FindByPath(ctx, "/music/text.flac"); err != nil {
		t.Fatalf("find: %v", err)
	}
}

func TestTopOrdersByAttribute(t *testing.T) {
	catalog := openTestCatalog(t)
	ctx := context.Background()
	seed := []struct {
		path   string
		plays  string
		rating string
	}{
		{"/music/a.flac", "2", "0.4"},
		{"/music/b.flac", "9", "0.9"},
		{"/music/c.flac", "5", "0.6"},
	}
	for _, s := range seed {
		id, err := catalog.Add(ctx, s.path)
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := catalog.store(ctx, id, map[string]string{KeyPlayCount: s.plays, KeyRating: s.rating}); err != nil {
			t.Fatalf("store: %v", err)
		}
	}
	if _, err := catalog.Add(ctx, "/music/unplayed.flac"); err != nil {
		t.Fatalf("add: %v", err)
	}

	top, err := catalog.Top(ctx, KeyPlayCount, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].Path != "/music/b.flac" || top[1].Path != "/music/c.flac" {
		t.Fatalf("unexpected order %+v", top)
	}
	if top[0].PlayCount != 9 || top[0].Rating != 0.9 {
		t.Fatalf("unexpected stat %+v", top[0])
	}

	all, err := catalog.Top(ctx, KeyRating, 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("items without statistics must be excluded, got %d", len(all))
	}

	if _, err := catalog.Top(ctx, "path; DROP TABLE items", 10); err == nil {
		t.Fatalf("expected unknown order error")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(" "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
