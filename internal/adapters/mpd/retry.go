package mpd

import (
	"context"
	"errors"
	"fmt"
	"time"

	gompd "github.com/fhs/gompd/v2/mpd"
	"go.uber.org/zap"

	"github.com/holms/mpdstats/internal/core"
)

// call runs fn up to the configured number of attempts. Between failed
// attempts it sleeps and re-establishes the connection; a failed reconnect
// only costs that attempt. A rejected password or an ACK from MPD ends the
// call at once.
func call[T any](ctx context.Context, s *Supervisor, name string, fn func(Conn) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= s.config.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if s.conn == nil {
			if err := s.Connect(ctx); err != nil {
				if perr := permanent(name, err); perr != nil {
					return zero, perr
				}
				lastErr = err
				if werr := s.wait(ctx, name, attempt, err); werr != nil {
					return zero, werr
				}
				continue
			}
		}

		value, err := fn(s.conn)
		if err == nil {
			return value, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if perr := permanent(name, err); perr != nil {
			return zero, perr
		}
		lastErr = err
		if werr := s.wait(ctx, name, attempt, err); werr != nil {
			return zero, werr
		}
		if err := s.reconnect(ctx); err != nil {
			if perr := permanent(name, err); perr != nil {
				return zero, perr
			}
			s.log.Warn("reconnect failed", zap.String("call", name), zap.Error(err))
		}
	}
	return zero, core.WrapError(core.ExitRetry, fmt.Sprintf("%s failed after %d attempts", name, s.config.Retries), errors.Join(core.ErrRetryExhausted, lastErr))
}

// permanent returns the error to stop with when err cannot be fixed by
// reconnecting, or nil for transport failures.
func permanent(name string, err error) error {
	if errors.Is(err, core.ErrAuth) {
		var coded *core.Error
		if errors.As(err, &coded) {
			return err
		}
		return core.WrapError(core.ExitAuth, "could not authenticate to MPD", err)
	}
	var ack gompd.Error
	if errors.As(err, &ack) {
		return core.WrapError(core.ExitRuntime, fmt.Sprintf("%s rejected by MPD", name), err)
	}
	return nil
}

func (s *Supervisor) wait(ctx context.Context, name string, attempt int, err error) error {
	s.log.Warn("mpd call failed, retrying",
		zap.String("call", name),
		zap.Int("attempt", attempt),
		zap.Int("retries", s.config.Retries),
		zap.Duration("interval", s.config.RetryInterval),
		zap.Error(err),
	)
	return s.sleep(ctx, s.config.RetryInterval)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
