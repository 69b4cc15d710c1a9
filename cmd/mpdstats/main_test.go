package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/holms/mpdstats/internal/adapters/beets"
	"github.com/holms/mpdstats/internal/core"
	"github.com/holms/mpdstats/internal/mpdstats"
	"github.com/holms/mpdstats/pkg/stats"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("BEETSDIR", t.TempDir())
	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestApplyOverrides(t *testing.T) {
	cfg := mpdstats.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.Embedded.Enabled = true
	opts := &runOptions{host: "mpd.lan", port: 6601, noRating: true, ratingMix: 0.5}
	changed := func(name string) bool { return name == "port" || name == "rating-mix" }

	applyOverrides(&cfg, opts, changed)

	if cfg.MPD.Host != "mpd.lan" || cfg.MPD.Port != 6601 {
		t.Fatalf("host/port not overridden: %+v", cfg.MPD)
	}
	if cfg.Stats.Rating || cfg.Stats.RatingMix != 0.5 {
		t.Fatalf("rating overrides not applied: %+v", cfg.Stats)
	}
	if cfg.Events.Broker != "mqtt://127.0.0.1:1883" {
		t.Fatalf("expected embedded broker url, got %q", cfg.Events.Broker)
	}
}

func TestApplyOverridesKeepsUnchangedPort(t *testing.T) {
	cfg := mpdstats.DefaultConfig()
	cfg.MPD.Port = 6700
	applyOverrides(&cfg, &runOptions{port: 0}, func(string) bool { return false })
	if cfg.MPD.Port != 6700 {
		t.Fatalf("port clobbered: %d", cfg.MPD.Port)
	}
}

func TestStartEventsDisabled(t *testing.T) {
	publisher, err := startEvents(context.Background(), mpdstats.DefaultConfig(), zap.NewNop(), func() {})
	if err != nil {
		t.Fatalf("startEvents: %v", err)
	}
	if publisher != nil || publisher.port() != nil {
		t.Fatalf("expected no publisher")
	}
}

func TestStartEventsWaitsForEmbeddedBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	listen := ln.Addr().String()
	_ = ln.Close()

	cfg := mpdstats.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.Identity = "test"
	cfg.Events.Embedded.Enabled = true
	cfg.Events.Embedded.Listen = listen
	applyOverrides(&cfg, &runOptions{}, func(string) bool { return false })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := time.Now()
	publisher, err := startEvents(ctx, cfg, zap.NewNop(), cancel)
	if err != nil {
		t.Fatalf("startEvents: %v", err)
	}
	defer publisher.close()
	if elapsed := time.Since(started); elapsed >= 2*time.Second {
		t.Fatalf("startup waited for the connect timeout: %v", elapsed)
	}

	started = time.Now()
	if err := publisher.port().Publish(ctx, stats.TypeState, stats.StateBody{State: "playing"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if elapsed := time.Since(started); elapsed >= time.Second {
		t.Fatalf("publish blocked for %v", elapsed)
	}
}

func TestWaitForListenTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	if err := waitForListen(context.Background(), addr, 100*time.Millisecond); err == nil {
		t.Fatalf("expected timeout for %s", addr)
	}
}

func TestRunPrintConfigResolvesEnvironment(t *testing.T) {
	t.Setenv("MPD_HOST", "secret@mpd.lan")
	t.Setenv("MPD_PORT", "6601")
	path := writeConfig(t, "[mpdstats]\nrating_mix = 0.6\nlibrary = \"/tmp/library.db\"\n")

	out, err := execute(t, "run", "--config", path, "--env-file", filepath.Join(t.TempDir(), "missing.env"), "--print-config")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{`host = "mpd.lan"`, `port = 6601`, `password = "********"`, `rating_mix = 0.6`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "secret") {
		t.Fatalf("password leaked:\n%s", out)
	}
}

func TestRunDryRunRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "[mpdstats]\nrating_mix = 1.5\nlibrary = \"/tmp/library.db\"\n")

	_, err := execute(t, "run", "--config", path, "--env-file", "", "--dry-run")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if core.ExitCode(err) != core.ExitUsage {
		t.Fatalf("exit code = %d, want %d", core.ExitCode(err), core.ExitUsage)
	}
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	_, err := execute(t, "run", "--bogus")
	if core.ExitCode(err) != core.ExitUsage {
		t.Fatalf("exit code = %d for %v", core.ExitCode(err), err)
	}
}

func TestTopJSON(t *testing.T) {
	dir := t.TempDir()
	library := filepath.Join(dir, "library.db")
	catalog, err := beets.Open(library)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	for i, path := range []string{"/music/a.flac", "/music/b.flac"} {
		if _, err := catalog.Add(ctx, path); err != nil {
			t.Fatalf("add: %v", err)
		}
		item, err := catalog.FindByPath(ctx, path)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		item.SetPlayCount(int64(i + 1))
		if err := item.Persist(ctx); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}
	_ = catalog.Close()

	path := writeConfig(t, "")
	out, err := execute(t, "top", "--config", path, "--env-file", "", "--library", library, "--order", "plays", "--json")
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	var stats []beets.Stat
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(stats) != 2 || stats[0].Path != "/music/b.flac" || stats[0].PlayCount != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestNormalizeOrder(t *testing.T) {
	cases := map[string]string{
		"plays":      beets.KeyPlayCount,
		"skip-count": beets.KeySkipCount,
		"Rating":     beets.KeyRating,
		"recent":     beets.KeyLastPlayed,
	}
	for in, want := range cases {
		if got := normalizeOrder(in); got != want {
			t.Fatalf("normalizeOrder(%q) = %q, want %q", in, got, want)
		}
	}
}
