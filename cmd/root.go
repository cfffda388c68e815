package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/areamatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "areamatch",
	Short: "Classify route lines against reference areas",
	Long: `Assigns every piece of a route network to the reference area it runs in
and copies that area's attributes onto the piece, keeping the route's own
attributes where it has them.

Routes are cut exactly by preferred areas first (e.g. cycle lanes). Leftover
pieces are matched by their buffered endpoints, then by the largest buffer
overlap with any area that is not ignored (lawns, sidewalks, parking).
Pieces near nothing but ignored areas are kept with route attributes only.
Pieces of one route that end up with equal attributes are merged back into
one feature.

Inputs and outputs are shapefiles or GeoJSON. Settings come from config.yaml,
.env and AREAMATCH_* environment variables.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
