package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/outline/internal/api"
	"github.com/jackzampolin/outline/internal/compare"
	"github.com/jackzampolin/outline/internal/llmcall"
	"github.com/jackzampolin/outline/internal/providers"
	"github.com/jackzampolin/outline/internal/store"
)

var (
	compareOracle   string
	compareSave     bool
	compareMapping  string
	compareNoReport bool
)

var compareCmd = &cobra.Command{
	Use:   "compare <template> <target>",
	Short: "Map a template outline onto a target outline",
	Long: `Compare runs locally: both files are loaded, every template chapter is
mapped onto the target, and the result is printed.

With --save the run and every LLM call it made are stored in the home
database, and a report is written to ~/.outline/reports/<run-id>.<format>.

Examples:
  outline compare template.html target.html
  outline compare template.yaml target.pdf --oracle text -o json
  outline compare a.html b.html --mapping '{"similarity_threshold":0.6}' --save`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := loadEnv()
		if err != nil {
			return err
		}
		cfg := e.config.Get()

		req, err := compare.LoadFiles(args[0], args[1])
		if err != nil {
			return err
		}
		req.Oracle = compareOracle
		req.Save = compareSave
		if compareMapping != "" {
			if !json.Valid([]byte(compareMapping)) {
				return errors.New("--mapping must be a JSON object")
			}
			req.Mapping = json.RawMessage(compareMapping)
		}

		scoreCache, closeCache, err := compare.OpenCache(ctx, cfg.Cache)
		if err != nil {
			return err
		}
		defer closeCache()

		svcCfg := compare.Config{
			Settings: cfg,
			Registry: providers.NewRegistryFromConfig(cfg.ToProviderRegistryConfig(), e.logger),
			Cache:    scoreCache,
			Logger:   e.logger,
		}

		if compareSave {
			if err := e.home.EnsureExists(); err != nil {
				return err
			}
			st, err := store.Open(e.home.DatabasePath(cfg.Store.Path))
			if err != nil {
				return err
			}
			defer st.Close()

			sink := llmcall.NewSink(llmcall.SinkConfig{Writer: st, Logger: e.logger})
			sink.Start(ctx)
			defer sink.Stop()

			svcCfg.Store = st
			svcCfg.Recorder = llmcall.NewRecorder(sink)
		}

		resp, err := compare.New(svcCfg).Compare(ctx, req)
		if err != nil {
			return err
		}

		if resp.RunID != "" && !compareNoReport {
			format := api.GetOutputFormat()
			path := e.home.ReportPath(resp.RunID, string(format))
			if err := api.OutputToFile(path, format, resp); err != nil {
				return err
			}
			e.logger.Info("report written", "path", path)
		}
		return api.Output(resp)
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns <template> <target>",
	Short: "Detect how a target outline was renumbered",
	Long: `Run renumbering detection alone: offsets, reorders, insertions,
deletions and mixed changes. Patterns that fail validation are listed
separately under "rejected".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		req, err := compare.LoadFiles(args[0], args[1])
		if err != nil {
			return err
		}
		svc := compare.New(compare.Config{Settings: e.config.Get(), Logger: e.logger})
		return api.Output(svc.Patterns(req.Template, req.Target))
	},
}

func init() {
	compareCmd.Flags().StringVar(&compareOracle, "oracle", "", "semantic oracle: llm or text (default from config)")
	compareCmd.Flags().BoolVar(&compareSave, "save", false, "store the run and its LLM calls in the home database")
	compareCmd.Flags().StringVar(&compareMapping, "mapping", "", `mapping overrides as JSON, e.g. '{"similarity_threshold":0.6}'`)
	compareCmd.Flags().BoolVar(&compareNoReport, "no-report", false, "skip writing a report file for saved runs")

	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(patternsCmd)
}
