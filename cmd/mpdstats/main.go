package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/holms/mpdstats/internal/core"
	"github.com/holms/mpdstats/internal/mpdstats"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCommand(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "mpdstats:", err)
		cancel()
		os.Exit(core.ExitCode(err))
	}
}

type globalOptions struct {
	configPath string
	envFile    string
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "mpdstats",
		Short:         "Track MPD listening statistics in a beets library",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return core.WrapError(core.ExitUsage, "invalid flags", err)
	})

	defaultConfig, err := mpdstats.DefaultConfigPath()
	if err != nil {
		defaultConfig = ""
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "config file path")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file merged into the environment")

	root.AddCommand(runCommand(opts))
	root.AddCommand(topCommand(opts))
	return root
}

// loadConfig resolves defaults, the config file and the environment.
// Command flags are applied by the caller.
func loadConfig(opts *globalOptions) (mpdstats.Config, error) {
	if err := mpdstats.LoadDotEnv(opts.envFile); err != nil {
		return mpdstats.Config{}, core.WrapError(core.ExitUsage, "load env file", err)
	}
	cfg, err := mpdstats.LoadConfig(opts.configPath)
	if err != nil {
		return mpdstats.Config{}, core.WrapError(core.ExitUsage, "load config", err)
	}
	if err := mpdstats.ApplyEnv(&cfg, os.Getenv); err != nil {
		return mpdstats.Config{}, core.WrapError(core.ExitUsage, "environment", err)
	}
	return cfg, nil
}
