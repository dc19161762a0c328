package main

import (
	"fmt"
	"os"

	"github.com/aretw0/cadloop/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cadloop",
	Short: "cadloop runs CAD modeling code and shows you the result",
	Long: `cadloop executes solid-modeling scripts in a sandbox, keeps the resulting
models in a session, and renders them as shaded views, technical drawings
and blueprints. It is served to agents over MCP and to programs over HTTP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("artifacts", "", "Artifact backend: memory, file or redis")
	rootCmd.PersistentFlags().String("artifacts-dir", "", "Directory for the file backend")
	rootCmd.PersistentFlags().String("redis-url", "", "Redis URL for the redis backend")
}

// loadConfig reads the config file and applies the persistent flags over it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if v, _ := cmd.Flags().GetString("artifacts"); v != "" {
		cfg.Artifacts.Backend = v
	}
	if v, _ := cmd.Flags().GetString("artifacts-dir"); v != "" {
		cfg.Artifacts.Dir = v
	}
	if v, _ := cmd.Flags().GetString("redis-url"); v != "" {
		cfg.Artifacts.RedisURL = v
	}
	return cfg, cfg.Validate()
}

func debugFlag(cmd *cobra.Command) bool {
	debug, _ := cmd.Flags().GetBool("debug")
	return debug
}
