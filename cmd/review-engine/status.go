// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/report"
	"github.com/pdiddy/review-engine/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how records are distributed over the review stages",
	Long: `Status aggregates the records file of the work tree and prints, for
every state, how many records sit there now and how many have reached or
passed it. Use --write to regenerate the status file.

With --history N, status lists the last N recorded check runs instead;
--export yaml|json dumps the ledger with violations and counts.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	historyN, _ := cmd.Flags().GetInt("history")
	export, _ := cmd.Flags().GetString("export")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	write, _ := cmd.Flags().GetBool("write")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	if historyN > 0 || export != "" {
		return runLedgerStatus(cmd, a, historyN, export, jsonOutput)
	}

	snap, err := a.gate(nil).Status()
	if err != nil {
		return err
	}
	if write {
		path := filepath.Join(a.root, a.settings.Project.StatusFile)
		if err := status.WriteFile(path, snap); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", a.settings.Project.StatusFile)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	return report.Status(out, snap, report.OptionsFor(os.Stdout))
}

func runLedgerStatus(cmd *cobra.Command, a *app, limit int, export string, jsonOutput bool) error {
	if !a.settings.Ledger.Enabled {
		return fmt.Errorf("the run ledger is disabled")
	}
	store, err := a.openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	switch export {
	case "":
	case "yaml":
		return store.ExportYAML(ctx, out, limit)
	case "json":
		return store.ExportJSON(ctx, out, limit)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", export)
	}

	runs, err := store.Runs(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	return report.Runs(out, runs, report.OptionsFor(os.Stdout))
}

func init() {
	statusCmd.Flags().Int("history", 0, "list the last N recorded check runs")
	statusCmd.Flags().String("export", "", "export the run ledger: yaml or json")
	statusCmd.Flags().Bool("json", false, "output as JSON")
	statusCmd.Flags().Bool("write", false, "regenerate the status file")

	rootCmd.AddCommand(statusCmd)
}
