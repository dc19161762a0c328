package main

import (
	"errors"
	"os"

	"github.com/aretw0/cadloop"
	"github.com/aretw0/cadloop/internal/cli"
	"github.com/aretw0/cadloop/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <script.go>",
	Short: "Run a modeling script once",
	Long: `Executes a modeling script as a fresh model, prints its measurements and
optionally renders the standard views, analyzes printability and exports it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		opts := runOptions(cmd, args[0])
		logger := cli.NewLogger(cfg, debugFlag(cmd))

		engine, err := cli.NewEngine(cfg, logger, nil)
		if err != nil {
			return err
		}
		defer engine.Close()

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		var render func(string) (string, error)
		if !opts.JSON {
			render = tui.NewRenderer(os.Stdout)
		}
		_, err = cli.Run(sigCtx, engine, opts, cmd.OutOrStdout(), render)
		if errors.Is(err, cli.ErrExecutionFailed) {
			// The summary already explains the failure.
			cmd.SilenceErrors = true
		}
		return err
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <script.go>",
	Short: "Re-run a modeling script every time it is saved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		opts := runOptions(cmd, args[0])
		logger := cli.NewLogger(cfg, debugFlag(cmd))

		engine, err := cli.NewEngine(cfg, logger, nil)
		if err != nil {
			return err
		}
		defer engine.Close()

		if !opts.JSON {
			tui.PrintBanner(cmd.OutOrStdout(), cadloop.Version)
		}

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		w := &cli.Watcher{
			Engine:  engine,
			Options: opts,
			Out:     cmd.OutOrStdout(),
			Logger:  logger,
		}
		if !opts.JSON {
			w.Render = tui.NewRenderer(os.Stdout)
		}
		return w.Run(sigCtx)
	},
}

func runOptions(cmd *cobra.Command, script string) cli.RunOptions {
	opts := cli.RunOptions{Script: script}
	opts.Name, _ = cmd.Flags().GetString("name")
	opts.OutDir, _ = cmd.Flags().GetString("out")
	opts.Render, _ = cmd.Flags().GetBool("render")
	opts.Export, _ = cmd.Flags().GetString("export")
	opts.Analyze, _ = cmd.Flags().GetBool("analyze")
	opts.MinWallThickness, _ = cmd.Flags().GetFloat64("min-wall")
	opts.JSON, _ = cmd.Flags().GetBool("json")
	return opts
}

func init() {
	for _, c := range []*cobra.Command{runCmd, watchCmd} {
		rootCmd.AddCommand(c)
		c.Flags().String("name", "", "Model name (default: script file name)")
		c.Flags().StringP("out", "o", ".", "Directory for renders and exports")
		c.Flags().BoolP("render", "r", false, "Render the standard views")
		c.Flags().StringP("export", "e", "", "Export format: stl or 3mf")
		c.Flags().Bool("analyze", false, "Analyze printability")
		c.Flags().Float64("min-wall", 0, "Minimum wall thickness in mm (default from config)")
		c.Flags().Bool("json", false, "Print the summary as JSON")
	}
}
