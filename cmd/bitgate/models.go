package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"teclab/bitgate/pkg/cli"
	"teclab/bitgate/pkg/config"
)

var modelsFlags struct {
	format string
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured models",
	Long: `List every configured model with its backend type and pricing.

Models whose credentials are missing are shown as inactive; the gateway
skips them at startup.

Examples:
  bitgate models
  bitgate models --format json`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.Flags().StringVarP(&modelsFlags.format, "format", "f", "text", "output format: text, json, csv")
}

// modelRow is one configured model as printed by the models command.
type modelRow struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	BaseURL     string  `json:"base_url"`
	InputPrice  float64 `json:"input_price"`
	OutputPrice float64 `json:"output_price"`
	Active      bool    `json:"active"`
}

type modelTable []modelRow

func (t modelTable) Header() []string {
	return []string{"MODEL", "NAME", "TYPE", "BASE URL", "INPUT", "OUTPUT", "ACTIVE"}
}

func (t modelTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, m := range t {
		rows = append(rows, []string{
			m.ID,
			m.Name,
			m.Type,
			m.BaseURL,
			strconv.FormatFloat(m.InputPrice, 'f', -1, 64),
			strconv.FormatFloat(m.OutputPrice, 'f', -1, 64),
			strconv.FormatBool(m.Active),
		})
	}
	return rows
}

// buildModelTable lists cfg's models sorted by identifier.
func buildModelTable(cfg *config.Config) modelTable {
	ids := make([]string, 0, len(cfg.Models))
	for id := range cfg.Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	t := make(modelTable, 0, len(ids))
	for _, id := range ids {
		m := cfg.Models[id]
		name := m.Name
		if name == "" {
			name = id
		}
		t = append(t, modelRow{
			ID:          id,
			Name:        name,
			Type:        m.Type,
			BaseURL:     m.BaseURL,
			InputPrice:  m.Pricing.Input,
			OutputPrice: m.Pricing.Output,
			Active:      m.HasCredentials(),
		})
	}
	return t
}

func runModels(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(modelsFlags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), buildModelTable(cfg)); err != nil {
		return cli.NewCommandError("models", fmt.Errorf("failed to write output: %w", err))
	}
	return nil
}
