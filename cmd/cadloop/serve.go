package main

import (
	"context"
	"fmt"

	"github.com/aretw0/cadloop/internal/cli"
	"github.com/aretw0/cadloop/internal/metrics"
	httpAdapter "github.com/aretw0/cadloop/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts cadloop as a REST service. Requests are validated against the
OpenAPI document served at /openapi.yaml and metrics are exposed at /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}
		if noValidate, _ := cmd.Flags().GetBool("no-validate"); noValidate {
			cfg.HTTP.ValidateSchema = false
		}
		logger := cli.NewLogger(cfg, debugFlag(cmd))

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		engine, err := cli.NewEngine(cfg, logger, metrics.New(reg))
		if err != nil {
			return err
		}
		defer engine.Close()

		handler, err := httpAdapter.NewHandler(engine,
			httpAdapter.WithLogger(logger.With("component", "http")),
			httpAdapter.WithValidation(cfg.HTTP.ValidateSchema),
			httpAdapter.WithGatherer(reg),
		)
		if err != nil {
			return err
		}

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		fmt.Fprintf(cmd.ErrOrStderr(), "Starting cadloop server on %s (kernel %s)\n", cfg.HTTP.Addr, engine.KernelName())
		if err := httpAdapter.Serve(sigCtx, cfg.HTTP.Addr, handler, logger); err != nil {
			return err
		}
		if sig := sigCtx.Signal(); sig != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "cadloop server stopped (%v)\n", sig)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (default from config, :8080)")
	serveCmd.Flags().Bool("no-validate", false, "Skip OpenAPI request validation")
}
