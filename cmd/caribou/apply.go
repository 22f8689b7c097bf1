package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leontalbot/caribou/internal/seed"
)

var applyFile string

func init() {
	applyCmd.Flags().StringVarP(&applyFile, "file", "f", "models.yaml", "Seed file to apply")
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a YAML model definition file",
	Long:  "Create the models and fields a seed file declares; models that already exist only gain missing fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := boot(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		f, err := seed.Load(applyFile)
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, rt.engine, f); err != nil {
			return err
		}
		rt.log.Info("seed applied",
			zap.String("file", applyFile),
			zap.Int("models", len(f.Models)))
		return nil
	},
}
