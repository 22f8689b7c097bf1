package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the loaded models and their fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := boot(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		for _, m := range rt.engine.Models() {
			fmt.Printf("%3d  %s", m.ID, m.Slug)
			if m.Description != "" {
				fmt.Printf("  (%s)", m.Description)
			}
			fmt.Println()
			for _, f := range m.FieldsInOrder() {
				row := f.Row()
				fmt.Printf("      %-24s %s\n", row.Slug, row.Type)
			}
		}
		return nil
	},
}
