// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/review-engine/internal/report"
	"github.com/pdiddy/review-engine/internal/review"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the pre-commit consistency gate",
	Long: `Check verifies the staged records file against the last committed
version. It refuses to run with unstaged changes or unresolved conflicts,
reports every violation, regenerates and stages the status file, and exits
non-zero when a violation blocks the commit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGate(cmd, review.ModePreCommit)
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the work tree and list records changed since HEAD",
	Long: `Doctor runs the same checks as check against the work tree, without
requiring changes to be staged, and lists the records whose entries changed
since the last commit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGate(cmd, review.ModeDoctor)
	},
}

func runGate(cmd *cobra.Command, mode review.Mode) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	store, err := a.openLedger()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	res, err := a.gate(store).Run(cmd.Context(), mode)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	opts := report.OptionsFor(os.Stdout)
	if err := report.Violations(out, res.Violations, opts); err != nil {
		return err
	}
	if res.StatusWritten {
		fmt.Fprintf(out, "Updated %s\n", a.settings.Project.StatusFile)
	}
	if mode == review.ModeDoctor {
		if len(res.ChangedIDs) == 0 {
			fmt.Fprintln(out, "No records changed since HEAD.")
		} else {
			fmt.Fprintf(out, "Records changed since HEAD (%d):\n", len(res.ChangedIDs))
			for _, id := range res.ChangedIDs {
				fmt.Fprintf(out, "  %s\n", id)
			}
		}
	}
	return res.Err()
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(doctorCmd)
}
