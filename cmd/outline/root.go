package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/outline/internal/api"
	"github.com/jackzampolin/outline/internal/config"
	"github.com/jackzampolin/outline/internal/home"
	"github.com/jackzampolin/outline/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "outline",
	Short: "Map a template chapter outline onto a target document",
	Long: `Outline compares a target document's chapter outline against a template
and reports which template chapters are present, renamed, renumbered,
moved across heading levels or missing.

Outlines are read from HTML headings, PDF bookmarks, or YAML/JSON files.
Matching combines title, numbering, position and structure heuristics with
a semantic oracle (an LLM, or an offline keyword-overlap scorer).`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.outline/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "outline home directory (default: ~/.outline)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level override: debug, info, warn or error",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if _, err := api.ParseOutputFormat(outputFormat); err != nil {
			return err
		}
		api.SetOutputFormat(outputFormat)
		return nil
	}

	rootCmd.AddCommand(versionCmd)
}

// env is what local commands need: the home layout, the loaded config
// and a logger at the configured level.
type env struct {
	home   *home.Dir
	config *config.Manager
	logger *slog.Logger
}

// loadEnv resolves the home directory and config file. A config file in
// --home takes precedence over the default search path.
func loadEnv() (*env, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}

	file := cfgFile
	if file == "" && homeDir != "" && h.ConfigExists() {
		file = h.ConfigPath()
	}
	mgr, err := config.NewManager(file)
	if err != nil {
		return nil, err
	}

	logging := mgr.Get().Logging
	if logLevel != "" {
		logging.Level = logLevel
	}
	// Logs go to stderr so yaml/json output on stdout stays parseable
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logging.SlogLevel(),
	}))
	slog.SetDefault(logger)

	return &env{home: h, config: mgr, logger: logger}, nil
}
