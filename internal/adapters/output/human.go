package output

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/holms/mpdstats/internal/adapters/beets"
)

// HumanPrinter renders tables for a terminal.
type HumanPrinter struct {
	Out io.Writer
}

// Print renders human output.
func (p HumanPrinter) Print(v any) error {
	switch data := v.(type) {
	case []beets.Stat:
		return p.printStats(data)
	default:
		_, err := fmt.Fprintln(p.Out, "ok")
		return err
	}
}

func (p HumanPrinter) printStats(stats []beets.Stat) error {
	if len(stats) == 0 {
		_, err := fmt.Fprintln(p.Out, "no items with statistics")
		return err
	}
	data := pterm.TableData{{"RATING", "PLAYS", "SKIPS", "LAST PLAYED", "PATH"}}
	for _, stat := range stats {
		data = append(data, []string{
			strconv.FormatFloat(stat.Rating, 'f', 3, 64),
			strconv.FormatInt(stat.PlayCount, 10),
			strconv.FormatInt(stat.SkipCount, 10),
			formatWhen(stat.LastPlayed),
			stat.Path,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(p.Out).WithData(data).Render()
}

func formatWhen(when *time.Time) string {
	if when == nil {
		return "-"
	}
	return when.Local().Format("2006-01-02 15:04")
}
