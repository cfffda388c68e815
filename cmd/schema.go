package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/areamatch/internal/pipeline"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the output schema derived from the configured sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyInputFlags(cmd, cfg)
		if err := cfg.Validate("schema"); err != nil {
			return err
		}

		schema, err := pipeline.New(cfg).Schema()
		if err != nil {
			return eris.Wrap(err, "schema")
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(schema); err != nil {
			return eris.Wrap(err, "schema: encode")
		}
		return enc.Close()
	},
}

func init() {
	addInputFlags(schemaCmd)
	rootCmd.AddCommand(schemaCmd)
}
