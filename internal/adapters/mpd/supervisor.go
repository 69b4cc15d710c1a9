package mpd

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	gompd "github.com/fhs/gompd/v2/mpd"
	"go.uber.org/zap"

	"github.com/holms/mpdstats/internal/core"
	"github.com/holms/mpdstats/internal/ports"
)

// Defaults for the retry loop.
const (
	DefaultRetries       = 10
	DefaultRetryInterval = 5 * time.Second
)

// Config describes how to reach MPD and how to map its paths.
type Config struct {
	Host           string
	Port           int
	Password       string
	MusicDirectory string
	Retries        int
	RetryInterval  time.Duration
	StreamSchemes  []string
}

// Supervisor owns the MPD connection and retries daemon calls across
// transport failures. It is not safe for concurrent use.
type Supervisor struct {
	log    *zap.Logger
	dial   Dialer
	config Config
	conn   Conn
	sleep  func(context.Context, time.Duration) error
}

// NewSupervisor creates a supervisor. dial may be nil to use gompd.
func NewSupervisor(log *zap.Logger, dial Dialer, cfg Config) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	if dial == nil {
		dial = Dial
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	return &Supervisor{log: log, dial: dial, config: cfg, sleep: sleepContext}
}

// Address returns the network and address used to dial MPD.
func (s *Supervisor) Address() (string, string) {
	host := s.config.Host
	if strings.HasPrefix(host, "/") || strings.HasPrefix(host, "@") {
		return "unix", host
	}
	if host == "" {
		host = "localhost"
	}
	port := s.config.Port
	if port == 0 {
		port = 6600
	}
	return "tcp", net.JoinHostPort(host, strconv.Itoa(port))
}

// Connect dials MPD and authenticates when a password is configured.
func (s *Supervisor) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	network, addr := s.Address()
	s.log.Info("connecting", zap.String("network", network), zap.String("addr", addr))
	conn, err := s.dial(network, addr, s.config.Password)
	if err != nil {
		if errors.Is(err, core.ErrAuth) {
			return core.WrapError(core.ExitAuth, "could not authenticate to MPD", err)
		}
		return core.WrapError(core.ExitConnect, "could not connect to MPD", errors.Join(core.ErrConnection, err))
	}
	s.conn = conn
	return nil
}

// Disconnect closes the connection. It is safe to call repeatedly.
func (s *Supervisor) Disconnect() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.log.Debug("close", zap.Error(err))
	}
	s.conn = nil
}

// Idle waits for changed subsystems. ok is false when ctx ended the wait.
func (s *Supervisor) Idle(ctx context.Context) ([]string, bool, error) {
	events, err := call(ctx, s, "idle", func(conn Conn) ([]string, error) {
		return conn.Idle(ctx)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return events, true, nil
}

// Status reports the current player state.
func (s *Supervisor) Status(ctx context.Context) (ports.Status, error) {
	attrs, err := call(ctx, s, "status", func(conn Conn) (gompd.Attrs, error) {
		return conn.Status()
	})
	if err != nil {
		return ports.Status{}, err
	}
	return parseStatus(attrs), nil
}

// Playlist returns the queue with local paths joined to the music root.
func (s *Supervisor) Playlist(ctx context.Context) ([]ports.Entry, error) {
	infos, err := call(ctx, s, "playlistinfo", func(conn Conn) ([]gompd.Attrs, error) {
		return conn.PlaylistInfo(-1, -1)
	})
	if err != nil {
		return nil, err
	}
	entries := make([]ports.Entry, 0, len(infos))
	for _, info := range infos {
		id := info["Id"]
		if id == "" {
			id = info["id"]
		}
		entries = append(entries, ports.Entry{ID: id, Path: s.resolvePath(info["file"])})
	}
	return entries, nil
}

func (s *Supervisor) resolvePath(file string) string {
	if file == "" || core.IsStreamURL(file, s.config.StreamSchemes) {
		return file
	}
	return filepath.Join(s.config.MusicDirectory, file)
}

func (s *Supervisor) reconnect(ctx context.Context) error {
	s.Disconnect()
	return s.Connect(ctx)
}

// parseStatus reads state, song id and timing. MPD reports time as
// "elapsed:total" with whole seconds; the fractional elapsed and duration
// fields are preferred when present.
func parseStatus(attrs gompd.Attrs) ports.Status {
	status := ports.Status{
		State:  ports.PlayerState(attrs["state"]),
		SongID: attrs["songid"],
	}
	if raw, ok := attrs["time"]; ok {
		if elapsed, total, found := strings.Cut(raw, ":"); found {
			status.Elapsed = parseSeconds(elapsed)
			status.Total = parseSeconds(total)
		}
	}
	if raw, ok := attrs["elapsed"]; ok {
		status.Elapsed = parseSeconds(raw)
	}
	if raw, ok := attrs["duration"]; ok {
		status.Total = parseSeconds(raw)
	}
	return status
}

func parseSeconds(raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return value
}
