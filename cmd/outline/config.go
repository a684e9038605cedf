package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/outline/internal/api"
	"github.com/jackzampolin/outline/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the outline configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to the home directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		path := e.home.ConfigPath()
		if e.home.ConfigExists() && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := e.home.EnsureExists(); err != nil {
			return err
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print effective settings, or one setting by dotted key",
	Long: `Print the configuration after defaults, the config file and OUTLINE_*
environment overrides are applied. Literal API keys and passwords are masked.

Examples:
  outline config get
  outline config get mapping.similarity_threshold`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			v, err := e.config.Value(args[0])
			if err != nil {
				return err
			}
			return api.Output(map[string]any{args[0]: config.Redact(args[0], v)})
		}

		all := make(map[string]any)
		for _, key := range e.config.Keys() {
			v, err := e.config.Value(key)
			if err != nil {
				continue
			}
			all[key] = config.Redact(key, v)
		}
		return api.Output(all)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		if f := e.config.ConfigFile(); f != "" {
			fmt.Println(f)
			return nil
		}
		fmt.Printf("no config file found; defaults in use (create one with: outline config init --home %s)\n", e.home.Path())
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}
