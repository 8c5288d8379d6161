// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the review-engine CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/review-engine/internal/history"
	"github.com/pdiddy/review-engine/internal/ledger"
	"github.com/pdiddy/review-engine/internal/logging"
	"github.com/pdiddy/review-engine/internal/review"
	"github.com/pdiddy/review-engine/internal/settings"
	"github.com/pdiddy/review-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the review-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "review-engine",
	Short: "Consistency gate for systematic literature review repositories",
	Long: `review-engine keeps the records of a systematic literature review
consistent with their git history. It checks origins, status values, state
transitions, screening decisions and the ids of processed records, and keeps
the status summary next to the records file up to date.

Install "review-engine check" as a pre-commit hook; run "review-engine doctor"
to inspect the work tree at any time.`,
	SilenceUsage: true,
}

// flagNames are the persistent flags bound to viper keys of the same name.
var flagNames = []string{"project", "log-level", "log-format", "transition-policy", "no-ledger"}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./review-engine.yaml or ~/.config/review-engine/config.yaml)")
	pf.String("project", ".", "review project root (a git work tree)")
	pf.String("log-level", "warn", "log level: debug, info, warn or error")
	pf.String("log-format", "console", "log format: console or json")
	pf.String("transition-policy", "", "override check.transition_policy: warn or block")
	pf.Bool("no-ledger", false, "do not record runs in the ledger")

	for _, name := range flagNames {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("review-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "review-engine"))
		}
	}

	viper.SetEnvPrefix("REVIEW_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// app holds what every command needs: the project root, its settings and
// the logger. It is built after flags and config are resolved.
type app struct {
	root     string
	settings types.Settings
	logger   *zap.Logger
}

func newApp() (*app, error) {
	logger := logging.New(viper.GetString("log-level"), logging.Format(viper.GetString("log-format")), os.Stderr)

	root, err := filepath.Abs(viper.GetString("project"))
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	s, err := settings.Load(root)
	if err != nil {
		return nil, err
	}
	if p := viper.GetString("transition-policy"); p != "" {
		s.Check.TransitionPolicy = types.TransitionPolicy(p)
		if err := settings.Validate(s); err != nil {
			return nil, err
		}
	}
	if viper.GetBool("no-ledger") {
		s.Ledger.Enabled = false
	}
	logger.Debug("settings loaded",
		zap.String("root", root),
		zap.String("records_file", s.Project.RecordsFile),
		zap.Int("sources", len(s.Sources)),
		zap.Strings("criteria", s.CriteriaNames()))
	return &app{root: root, settings: s, logger: logger}, nil
}

// openLedger opens the run ledger, or returns nil when it is disabled.
func (a *app) openLedger() (*ledger.Store, error) {
	if !a.settings.Ledger.Enabled {
		return nil, nil
	}
	path := a.settings.Ledger.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.root, path)
	}
	return ledger.Open(path)
}

// gate builds the review gate. Pass a nil store to skip run recording.
func (a *app) gate(store *ledger.Store) *review.Gate {
	env := review.Env{
		Root:     a.root,
		Settings: a.settings,
		Logger:   a.logger,
		Git:      history.NewGit(a.root, 0),
	}
	if store != nil {
		env.Ledger = store
	}
	return review.New(env)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
