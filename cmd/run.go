package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/areamatch/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Classify routes and write the enriched lines",
	Long: `Reads the route and area collections, reconciles the optional secondary
route source, classifies every route piece in three passes (exact cut against
preferred areas, endpoint proximity, buffer overlap) and writes one feature per
route and attribute set.

Flags override the input and output sections of config.yaml.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyInputFlags(cmd, cfg)
		if cmd.Flags().Changed("out") {
			cfg.Output.Path, _ = cmd.Flags().GetString("out")
		}
		if cmd.Flags().Changed("buffers") {
			cfg.Output.Buffers, _ = cmd.Flags().GetString("buffers")
		}
		if cmd.Flags().Changed("report") {
			cfg.Output.Report, _ = cmd.Flags().GetString("report")
		}
		if cmd.Flags().Changed("concurrency") {
			cfg.Pipeline.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		}

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "run"))
		log.Info("starting classification",
			zap.String("routes", cfg.Input.Routes),
			zap.String("secondary", cfg.Input.Secondary),
			zap.String("areas", cfg.Input.Areas),
			zap.String("out", cfg.Output.Path),
			zap.Int("concurrency", cfg.Pipeline.Concurrency),
		)

		report, err := pipeline.New(cfg).Run(ctx)
		if err != nil {
			return eris.Wrap(err, "run")
		}

		fmt.Print(pipeline.FormatReport(report))
		return nil
	},
}

func init() {
	addInputFlags(runCmd)
	runCmd.Flags().String("out", "", "output collection (default: output.path)")
	runCmd.Flags().String("buffers", "", "write the overlap-pass buffers to this collection")
	runCmd.Flags().String("report", "", "write a YAML run report to this path")
	runCmd.Flags().Int("concurrency", 0, "parallel piece workers (default: from config or 4)")
	rootCmd.AddCommand(runCmd)
}
