package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/outline/internal/api"
	"github.com/jackzampolin/outline/internal/config"
	"github.com/jackzampolin/outline/internal/server/endpoints"
)

var serverURL string

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Saved comparison run commands",
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Configuration settings commands",
}

var llmcallsCmd = &cobra.Command{
	Use:   "llmcalls",
	Short: "LLM call history commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
// Without --server the address comes from the server section of the config.
func getServerURL() string {
	if serverURL != "" {
		return serverURL
	}
	e, err := loadEnv()
	if err != nil {
		return "http://" + config.DefaultConfig().Server.Addr()
	}
	return "http://" + e.config.Get().Server.Addr()
}

func addGroup(parent *cobra.Command, group []api.Endpoint) {
	for _, ep := range group {
		parent.AddCommand(ep.Command(getServerURL))
	}
}

func init() {
	reg := api.NewRegistry()
	for _, ep := range endpoints.TopLevelCommands() {
		reg.Register(ep)
	}
	apiCmd := reg.BuildCommands(getServerURL)

	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "", "Server URL (default: http://<server.host>:<server.port> from config)",
	)

	addGroup(runsCmd, endpoints.RunCommands())
	addGroup(settingsCmd, endpoints.SettingsCommands())
	addGroup(llmcallsCmd, endpoints.LLMCallCommands())

	apiCmd.AddCommand(runsCmd)
	apiCmd.AddCommand(settingsCmd)
	apiCmd.AddCommand(llmcallsCmd)
	rootCmd.AddCommand(apiCmd)
}
