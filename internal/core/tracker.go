package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/holms/mpdstats/internal/ports"
	"github.com/holms/mpdstats/pkg/stats"
)

// TrackerConfig configures verdict bookkeeping.
type TrackerConfig struct {
	Rating        bool
	RatingMix     float64
	StreamSchemes []string
}

// Tracker owns the current playback session and applies verdicts to the
// catalog when the playing track changes.
type Tracker struct {
	log       *zap.Logger
	catalog   ports.Catalog
	clock     ports.Clock
	publisher ports.Publisher
	config    TrackerConfig
	current   *Session
}

// NewTracker creates a tracker. publisher may be nil.
func NewTracker(log *zap.Logger, catalog ports.Catalog, clock ports.Clock, publisher ports.Publisher, cfg TrackerConfig) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Tracker{
		log:       log,
		catalog:   catalog,
		clock:     clock,
		publisher: publisher,
		config:    cfg,
	}
}

// Current returns the session being tracked, if any.
func (t *Tracker) Current() (Session, bool) {
	if t.current == nil {
		return Session{}, false
	}
	return *t.current, true
}

// Stopped clears the current session without a verdict.
func (t *Tracker) Stopped(ctx context.Context) {
	t.log.Info("stop")
	t.release(ctx, ports.StateStopped)
}

// Paused clears the current session without a verdict.
func (t *Tracker) Paused(ctx context.Context) {
	t.log.Info("pause")
	t.release(ctx, ports.StatePaused)
}

func (t *Tracker) release(ctx context.Context, state ports.PlayerState) {
	t.current = nil
	t.publish(ctx, stats.TypeState, stats.StateBody{State: string(state)})
}

// Playing observes that path is playing with elapsed of total seconds.
func (t *Tracker) Playing(ctx context.Context, path string, elapsed, total float64) {
	if IsStreamURL(path, t.config.StreamSchemes) {
		t.log.Info("play/stream", zap.String("path", path))
		return
	}
	if t.current != nil && t.current.Path == path {
		return
	}

	now := t.clock.Now()
	if t.current != nil {
		t.retire(ctx, *t.current, now)
	}

	next := Session{
		Path:              path,
		StartedAt:         now,
		ExpectedRemaining: time.Duration((total - elapsed) * float64(time.Second)),
		Item:              t.lookup(ctx, path),
	}
	t.current = &next
	t.log.Info("playing", zap.String("path", path), zap.Duration("remaining", next.ExpectedRemaining))

	body := stats.NowPlayingBody{
		Path:              path,
		StartedAt:         now.Unix(),
		ExpectedRemaining: next.ExpectedRemaining.Seconds(),
	}
	if next.Item != nil {
		next.Item.SetLastPlayed(now)
		t.persist(ctx, next.Item, zap.Int64("last_played", now.Unix()))
		body.ItemID = next.Item.ID()
		body.InCatalog = true
	}
	t.publish(ctx, stats.TypeState, stats.StateBody{State: string(ports.StatePlaying)})
	t.publish(ctx, stats.TypeNowPlaying, body)
}

func (t *Tracker) retire(ctx context.Context, s Session, now time.Time) {
	verdict, diff := s.Judge(now)
	t.log.Info(verdict.String(), zap.String("path", s.Path), zap.Duration("diff", diff))

	body := stats.VerdictBody{
		Path:    s.Path,
		Verdict: verdict.String(),
		DiffS:   diff.Seconds(),
	}
	if s.Item == nil {
		t.publish(ctx, stats.TypeVerdict, body)
		return
	}

	item := s.Item
	fields := []zap.Field{}
	if verdict == Skipped {
		item.SetSkipCount(item.SkipCount() + 1)
		fields = append(fields, zap.Int64("skip_count", item.SkipCount()))
	} else {
		item.SetPlayCount(item.PlayCount() + 1)
		fields = append(fields, zap.Int64("play_count", item.PlayCount()))
	}
	if t.config.Rating {
		item.SetRating(Rating(item.PlayCount(), item.SkipCount(), item.Rating(), verdict == Skipped, t.config.RatingMix))
		fields = append(fields, zap.Float64("rating", item.Rating()))
	}
	t.persist(ctx, item, fields...)

	plays, skips, rating := item.PlayCount(), item.SkipCount(), item.Rating()
	body.ItemID = item.ID()
	body.PlayCount = &plays
	body.SkipCount = &skips
	if t.config.Rating {
		body.Rating = &rating
	}
	t.publish(ctx, stats.TypeVerdict, body)
}

func (t *Tracker) lookup(ctx context.Context, path string) ports.Item {
	item, err := t.catalog.FindByPath(ctx, path)
	if errors.Is(err, ErrNotFound) {
		t.log.Info("item not found", zap.String("path", path))
		return nil
	}
	if err != nil {
		t.log.Error("catalog lookup failed", zap.String("path", path), zap.Error(err))
		return nil
	}
	return item
}

func (t *Tracker) persist(ctx context.Context, item ports.Item, fields ...zap.Field) {
	if err := item.Persist(ctx); err != nil {
		t.log.Error("catalog write failed", zap.String("path", item.Path()), zap.Error(err))
		return
	}
	t.log.Debug("updated", append(fields, zap.String("path", item.Path()))...)
}

func (t *Tracker) publish(ctx context.Context, eventType string, body any) {
	if err := t.publisher.Publish(ctx, eventType, body); err != nil {
		t.log.Warn("publish event failed", zap.String("type", eventType), zap.Error(err))
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }
