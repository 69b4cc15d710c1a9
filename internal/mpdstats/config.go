package mpdstats

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	mpdadapter "github.com/holms/mpdstats/internal/adapters/mpd"
	"github.com/holms/mpdstats/internal/core"
)

// Config is the top-level configuration for mpdstats.
type Config struct {
	MPD    MPDConfig    `toml:"mpd"`
	Stats  StatsConfig  `toml:"mpdstats"`
	Log    LogConfig    `toml:"log"`
	Events EventsConfig `toml:"events"`
}

// MPDConfig locates the MPD server.
type MPDConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
}

// StatsConfig configures tracking.
type StatsConfig struct {
	MusicDirectory string        `toml:"music_directory"`
	Rating         bool          `toml:"rating"`
	RatingMix      float64       `toml:"rating_mix"`
	Library        string        `toml:"library"`
	Retries        int           `toml:"retries"`
	RetryInterval  time.Duration `toml:"retry_interval"`
	StreamSchemes  []string      `toml:"stream_schemes"`
}

// EventsConfig configures MQTT event publishing.
type EventsConfig struct {
	Enabled   bool           `toml:"enabled"`
	Broker    string         `toml:"broker"`
	Identity  string         `toml:"identity"`
	TopicBase string         `toml:"topic_base"`
	Username  string         `toml:"username"`
	Password  string         `toml:"password"`
	TLS       TLSConfig      `toml:"tls"`
	Embedded  EmbeddedConfig `toml:"embedded"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// EmbeddedConfig configures the in-process MQTT broker.
type EmbeddedConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		MPD: MPDConfig{Host: "localhost", Port: 6600},
		Stats: StatsConfig{
			MusicDirectory: expandHome("~/Music"),
			Rating:         true,
			RatingMix:      core.DefaultRatingMix,
			Library:        resolveBeetsPath(BeetsDir(os.Getenv), "library.db"),
			Retries:        mpdadapter.DefaultRetries,
			RetryInterval:  mpdadapter.DefaultRetryInterval,
		},
		Log: LogConfig{Level: "info", Format: "console", Output: "stdout", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
		Events: EventsConfig{
			Identity: hostname(),
			Embedded: EmbeddedConfig{Listen: "127.0.0.1:1883", AllowAnonymous: true},
		},
	}
}

// LoadConfig loads defaults, then the beets directory and library from
// beets' config.yaml, then the file at path. A missing file yields the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	beets, err := LoadBeetsConfig(BeetsDir(os.Getenv))
	if err != nil {
		return Config{}, fmt.Errorf("beets config: %w", err)
	}
	cfg.Stats.MusicDirectory = beets.Directory
	cfg.Stats.Library = beets.Library

	if path == "" {
		return cfg, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.Stats.MusicDirectory = expandHome(cfg.Stats.MusicDirectory)
	cfg.Stats.Library = expandHome(cfg.Stats.Library)
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overlays MPD_HOST, MPD_PORT and MPDSTATS_LIBRARY. MPD_HOST may
// carry a password as password@host.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if host := getenv("MPD_HOST"); host != "" {
		password, rest, found := strings.Cut(host, "@")
		// "@name" is an abstract socket, not a password.
		if found && password != "" && rest != "" {
			cfg.MPD.Password = password
			cfg.MPD.Host = rest
		} else {
			cfg.MPD.Host = host
		}
	}
	if raw := getenv("MPD_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("MPD_PORT: %w", err)
		}
		cfg.MPD.Port = port
	}
	if library := getenv("MPDSTATS_LIBRARY"); library != "" {
		cfg.Stats.Library = expandHome(library)
	}
	return nil
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Stats.RatingMix < 0 || c.Stats.RatingMix > 1 {
		errs = append(errs, fmt.Errorf("rating_mix must be within [0,1], got %v", c.Stats.RatingMix))
	}
	if c.Stats.Retries <= 0 {
		errs = append(errs, fmt.Errorf("retries must be positive, got %d", c.Stats.Retries))
	}
	if c.Stats.RetryInterval < 0 {
		errs = append(errs, errors.New("retry_interval must not be negative"))
	}
	if strings.TrimSpace(c.Stats.Library) == "" {
		errs = append(errs, errors.New("library path is required"))
	}
	if c.MPD.Port < 0 || c.MPD.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.MPD.Port))
	}
	if c.Events.Enabled && c.Events.Broker == "" && !c.Events.Embedded.Enabled {
		errs = append(errs, errors.New("events.broker is required unless events.embedded is enabled"))
	}
	if len(errs) > 0 {
		return core.WrapError(core.ExitUsage, "invalid config", errors.Join(errs...))
	}
	return nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "mpdstats", "config.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mpdstats", "config.toml"), nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "mpdstats"
	}
	return name
}
