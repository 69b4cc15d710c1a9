package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/holms/mpdstats/internal/adapters/beets"
	"github.com/holms/mpdstats/internal/adapters/output"
	"github.com/holms/mpdstats/internal/core"
)

func topCommand(global *globalOptions) *cobra.Command {
	var (
		limit   int
		order   string
		library string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "List library items by rating, plays, skips or recency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			if library != "" {
				cfg.Stats.Library = library
			}
			if limit <= 0 {
				return core.WrapError(core.ExitUsage, "invalid flags", fmt.Errorf("limit must be positive"))
			}

			catalog, err := beets.Open(cfg.Stats.Library)
			if err != nil {
				return core.WrapError(core.ExitRuntime, "open library", err)
			}
			defer catalog.Close()

			stats, err := catalog.Top(cmd.Context(), normalizeOrder(order), limit)
			if err != nil {
				return core.WrapError(core.ExitUsage, "top", err)
			}
			return output.New(cmd.OutOrStdout(), jsonOut).Print(stats)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of items")
	cmd.Flags().StringVarP(&order, "order", "o", beets.KeyRating, "order by "+strings.Join(beets.Orders, "|"))
	cmd.Flags().StringVar(&library, "library", "", "beets library database")
	cmd.Flags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	return cmd
}

// normalizeOrder accepts the attribute names with dashes or short aliases.
func normalizeOrder(order string) string {
	order = strings.ToLower(strings.TrimSpace(order))
	order = strings.ReplaceAll(order, "-", "_")
	switch order {
	case "plays":
		return beets.KeyPlayCount
	case "skips":
		return beets.KeySkipCount
	case "recent":
		return beets.KeyLastPlayed
	default:
		return order
	}
}
