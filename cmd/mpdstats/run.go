package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/holms/mpdstats/internal/adapters/beets"
	"github.com/holms/mpdstats/internal/adapters/clock"
	"github.com/holms/mpdstats/internal/adapters/idgen"
	mpdadapter "github.com/holms/mpdstats/internal/adapters/mpd"
	"github.com/holms/mpdstats/internal/adapters/mqtt"
	"github.com/holms/mpdstats/internal/core"
	embeddedmqtt "github.com/holms/mpdstats/internal/modules/embedded_mqtt"
	"github.com/holms/mpdstats/internal/mpdstats"
	"github.com/holms/mpdstats/internal/ports"
)

type runOptions struct {
	host           string
	port           int
	password       string
	musicDirectory string
	library        string
	rating         bool
	noRating       bool
	ratingMix      float64
	logLevel       string
	logFormat      string
	logFile        string
	printConfig    bool
	dryRun         bool
}

func runCommand(global *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch MPD and record plays, skips and ratings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			applyOverrides(&cfg, opts, cmd.Flags().Changed)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if opts.printConfig {
				return printResolvedConfig(cmd.OutOrStdout(), cfg)
			}
			if opts.dryRun {
				return nil
			}

			logger, err := mpdstats.NewLogger(cfg.Log)
			if err != nil {
				return core.WrapError(core.ExitUsage, "logging", err)
			}
			defer func() { _ = logger.Sync() }()
			return runDaemon(cmd.Context(), cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.host, "host", "", "MPD host or socket path")
	flags.IntVar(&opts.port, "port", 0, "MPD port")
	flags.StringVar(&opts.password, "password", "", "MPD password")
	flags.StringVar(&opts.musicDirectory, "music-directory", "", "music root used to resolve MPD paths")
	flags.StringVar(&opts.library, "library", "", "beets library database")
	flags.BoolVar(&opts.rating, "rating", false, "track ratings")
	flags.BoolVar(&opts.noRating, "no-rating", false, "do not track ratings")
	flags.Float64Var(&opts.ratingMix, "rating-mix", core.DefaultRatingMix, "weight of the stable rating component")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level override")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format override (console|json)")
	flags.StringVar(&opts.logFile, "log-file", "", "also write JSON logs to a rotating file")
	flags.BoolVar(&opts.printConfig, "print-config", false, "print resolved config and exit")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "validate config and exit")
	cmd.MarkFlagsMutuallyExclusive("rating", "no-rating")
	return cmd
}

func applyOverrides(cfg *mpdstats.Config, opts *runOptions, changed func(string) bool) {
	if opts.host != "" {
		cfg.MPD.Host = opts.host
	}
	if changed("port") {
		cfg.MPD.Port = opts.port
	}
	if opts.password != "" {
		cfg.MPD.Password = opts.password
	}
	if opts.musicDirectory != "" {
		cfg.Stats.MusicDirectory = opts.musicDirectory
	}
	if opts.library != "" {
		cfg.Stats.Library = opts.library
	}
	if opts.rating {
		cfg.Stats.Rating = true
	}
	if opts.noRating {
		cfg.Stats.Rating = false
	}
	if changed("rating-mix") {
		cfg.Stats.RatingMix = opts.ratingMix
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if opts.logFile != "" {
		cfg.Log.File = opts.logFile
	}
	if cfg.Events.Enabled && cfg.Events.Broker == "" && cfg.Events.Embedded.Enabled {
		tlsEnabled := cfg.Events.Embedded.TLSCert != ""
		cfg.Events.Broker = embeddedmqtt.BrokerURL(cfg.Events.Embedded.Listen, tlsEnabled)
	}
}

func runDaemon(ctx context.Context, cfg mpdstats.Config, logger *zap.Logger) error {
	logger.Info("mpdstats starting",
		zap.String("host", cfg.MPD.Host),
		zap.Int("port", cfg.MPD.Port),
		zap.String("library", cfg.Stats.Library),
		zap.String("music_directory", cfg.Stats.MusicDirectory),
		zap.Bool("rating", cfg.Stats.Rating),
		zap.Float64("rating_mix", cfg.Stats.RatingMix),
		zap.Bool("events", cfg.Events.Enabled),
	)

	catalog, err := beets.Open(cfg.Stats.Library)
	if err != nil {
		return core.WrapError(core.ExitRuntime, "open library", err)
	}
	defer catalog.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	publisher, err := startEvents(runCtx, cfg, logger, cancel)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.close()
	}

	daemon := mpdadapter.NewSupervisor(logger.With(zap.String("module", "mpd")), nil, mpdConfig(cfg))
	tracker := core.NewTracker(logger.With(zap.String("module", "tracker")), catalog, clock.Clock{}, publisher.port(), core.TrackerConfig{
		Rating:        cfg.Stats.Rating,
		RatingMix:     cfg.Stats.RatingMix,
		StreamSchemes: cfg.Stats.StreamSchemes,
	})
	loop := core.NewLoop(logger.With(zap.String("module", "loop")), daemon, tracker)

	modules := []mpdstats.ModuleRunner{{
		Name: "tracker",
		Run: func(ctx context.Context) error {
			// the embedded broker only lives as long as tracking does
			defer cancel()
			if err := daemon.Connect(ctx); err != nil {
				return err
			}
			defer daemon.Disconnect()
			return loop.Run(ctx)
		},
	}}

	supervisor := mpdstats.Supervisor{Logger: logger}
	return supervisor.Run(runCtx, modules)
}

func mpdConfig(cfg mpdstats.Config) mpdadapter.Config {
	return mpdadapter.Config{
		Host:           cfg.MPD.Host,
		Port:           cfg.MPD.Port,
		Password:       cfg.MPD.Password,
		MusicDirectory: cfg.Stats.MusicDirectory,
		Retries:        cfg.Stats.Retries,
		RetryInterval:  cfg.Stats.RetryInterval,
		StreamSchemes:  cfg.Stats.StreamSchemes,
	}
}

type eventPublisher struct {
	client    *mqtt.Client
	publisher *mqtt.Publisher
}

func (p *eventPublisher) port() ports.Publisher {
	if p == nil {
		return nil
	}
	return p.publisher
}

func (p *eventPublisher) close() {
	p.client.Close()
}

// startEvents starts the embedded broker when configured, waits for it to
// accept connections and then connects the publisher. It returns nil when
// events are disabled. A broker failure cancels the daemon.
func startEvents(ctx context.Context, cfg mpdstats.Config, logger *zap.Logger, cancel context.CancelFunc) (*eventPublisher, error) {
	if !cfg.Events.Enabled {
		return nil, nil
	}

	if cfg.Events.Embedded.Enabled {
		if err := startEmbeddedBroker(ctx, cfg, logger, cancel); err != nil {
			return nil, core.WrapError(core.ExitRuntime, "embedded mqtt", err)
		}
	}

	client, err := mqtt.NewClient(mqtt.Options{
		BrokerURL: cfg.Events.Broker,
		ClientID:  fmt.Sprintf("mpdstats-%s-%d", cfg.Events.Identity, time.Now().UnixNano()),
		Username:  cfg.Events.Username,
		Password:  cfg.Events.Password,
		TLSCA:     cfg.Events.TLS.CA,
		TLSCert:   cfg.Events.TLS.Cert,
		TLSKey:    cfg.Events.TLS.Key,
		Logger:    logger.With(zap.String("module", "mqtt")),
		Debug:     cfg.Log.Level == "debug",
	})
	if err != nil {
		return nil, core.WrapError(core.ExitRuntime, "mqtt connection failed", err)
	}
	publisher := mqtt.NewPublisher(client, cfg.Events.TopicBase, cfg.Events.Identity, idgen.Generator{}, clock.Clock{})
	return &eventPublisher{client: client, publisher: publisher}, nil
}

func startEmbeddedBroker(ctx context.Context, cfg mpdstats.Config, logger *zap.Logger, cancel context.CancelFunc) error {
	embedded := cfg.Events.Embedded
	mod, err := embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedmqtt.Config{
		Listen:         embedded.Listen,
		AllowAnonymous: embedded.AllowAnonymous,
		Username:       embedded.Username,
		Password:       embedded.Password,
		TLSCA:          embedded.TLSCA,
		TLSCert:        embedded.TLSCert,
		TLSKey:         embedded.TLSKey,
		TopicBase:      cfg.Events.TopicBase,
	})
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- mod.Run(ctx)
	}()

	ready := make(chan error, 1)
	go func() {
		ready <- waitForListen(ctx, mod.Addr(), 3*time.Second)
	}()
	select {
	case err := <-errCh:
		if err == nil {
			err = errors.New("embedded mqtt exited during startup")
		}
		return err
	case err := <-ready:
		if err != nil {
			return err
		}
	}

	go func() {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
	}()
	return nil
}

func waitForListen(ctx context.Context, listen string, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return fmt.Errorf("embedded mqtt not ready at %s", addr)
}

func printResolvedConfig(w io.Writer, cfg mpdstats.Config) error {
	redacted := cfg
	if redacted.MPD.Password != "" {
		redacted.MPD.Password = "********"
	}
	if redacted.Events.Password != "" {
		redacted.Events.Password = "********"
	}
	if redacted.Events.Embedded.Password != "" {
		redacted.Events.Embedded.Password = "********"
	}
	return toml.NewEncoder(w).Encode(redacted)
}
