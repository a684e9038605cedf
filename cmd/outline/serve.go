package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/outline/internal/server"
)

var (
	serveHost  string
	servePort  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Outline server",
	Long: `Start the Outline HTTP server.

The server opens the run database under the home directory and records
every LLM call the semantic oracle makes. Edits to the config file are
picked up without a restart.

The server provides:
  - /health           - Basic server health check
  - /status           - Providers and default oracle
  - /v1/compare       - Map a template outline onto a target
  - /v1/patterns      - Renumbering detection only
  - /v1/runs          - Saved comparison runs
  - /v1/llmcalls      - LLM call history
  - /v1/settings      - Effective configuration
  - /swagger          - API documentation

Examples:
  outline serve                    # Start on the configured address (default 127.0.0.1:8484)
  outline serve --port 3000        # Start on custom port
  outline serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}

		addr := e.config.Get().Server
		if cmd.Flags().Changed("host") {
			addr.Host = serveHost
		}
		if cmd.Flags().Changed("port") {
			addr.Port = servePort
		}

		if serveWatch && e.config.ConfigFile() != "" {
			e.config.WatchConfig()
		}

		srv, err := server.New(server.Config{
			Host:          addr.Host,
			Port:          addr.Port,
			Home:          e.home,
			ConfigManager: e.config,
			Logger:        e.logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to (overrides server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "8484", "Port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload settings when the config file changes")

	rootCmd.AddCommand(serveCmd)
}
