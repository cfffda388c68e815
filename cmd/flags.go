package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/areamatch/internal/config"
)

// addInputFlags registers the source location flags shared by run and schema.
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("routes", "", "primary route lines (.shp or .geojson; default: input.routes)")
	cmd.Flags().String("secondary", "", "secondary route lines reconciled onto the primary set (default: input.secondary)")
	cmd.Flags().String("areas", "", "reference polygons (.shp or .geojson; default: input.areas)")
	cmd.Flags().String("encoding", "", "DBF character set (default: input.encoding)")
}

// applyInputFlags overrides the input section with explicitly set flags.
func applyInputFlags(cmd *cobra.Command, c *config.Config) {
	if cmd.Flags().Changed("routes") {
		c.Input.Routes, _ = cmd.Flags().GetString("routes")
	}
	if cmd.Flags().Changed("secondary") {
		c.Input.Secondary, _ = cmd.Flags().GetString("secondary")
	}
	if cmd.Flags().Changed("areas") {
		c.Input.Areas, _ = cmd.Flags().GetString("areas")
	}
	if cmd.Flags().Changed("encoding") {
		c.Input.Encoding, _ = cmd.Flags().GetString("encoding")
	}
}
