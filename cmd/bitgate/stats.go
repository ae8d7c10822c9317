package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"teclab/bitgate/pkg/cli"
	"teclab/bitgate/pkg/config"
	"teclab/bitgate/pkg/usage"
)

var statsFlags struct {
	format string
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cumulative usage from the ledger",
	Long: `Print per-model call counts, estimated tokens and prices recorded in
the usage ledger. Totals survive retention pruning.

The gateway may keep running while this command reads the ledger.

Examples:
  bitgate stats
  bitgate stats --format csv > usage.csv`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVarP(&statsFlags.format, "format", "f", "text", "output format: text, json, csv")
}

// statsTable renders a usage summary as rows, with a trailing total row.
type statsTable usage.Summary

func (t statsTable) Header() []string {
	return []string{"MODEL", "CALLS", "INPUT", "OUTPUT", "TOTAL", "PRICE (" + t.Currency + ")"}
}

func (t statsTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Models)+1)
	for _, m := range t.Models {
		rows = append(rows, []string{
			m.Model,
			strconv.FormatInt(m.Calls, 10),
			strconv.FormatInt(m.InputTokens, 10),
			strconv.FormatInt(m.OutputTokens, 10),
			strconv.FormatInt(m.TotalTokens(), 10),
			strconv.FormatFloat(m.TotalPrice, 'f', 6, 64),
		})
	}
	rows = append(rows, []string{
		"total",
		strconv.FormatInt(t.Calls, 10),
		"", "", "",
		strconv.FormatFloat(t.TotalPrice, 'f', 6, 64),
	})
	return rows
}

func runStats(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(statsFlags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return printStats(cmd.Context(), cmd.OutOrStdout(), cfg.Usage, format)
}

// printStats writes the ledger totals of cfg to w.
func printStats(ctx context.Context, w io.Writer, cfg config.UsageConfig, format cli.OutputFormat) error {
	store, err := usage.Open(cfg)
	if err != nil {
		return cli.NewCommandError("stats", err)
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return cli.NewCommandError("stats", err)
	}
	summary := usage.Summarize(stats, cfg.Currency)

	var out interface{} = statsTable(summary)
	if format == cli.FormatJSON {
		out = summary
	}
	if err := cli.NewFormatter(format).FormatTo(w, out); err != nil {
		return cli.NewCommandError("stats", fmt.Errorf("failed to write output: %w", err))
	}
	return nil
}
