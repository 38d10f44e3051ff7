package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docfix/internal/model"
)

var correctKind string

var correctCmd = &cobra.Command{
	Use:   "correct <text>",
	Short: "Correct a single OCR field value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		fv, err := env.Engine.Correct(ctx, model.FieldKind(correctKind), args[0])
		if err != nil {
			return err
		}

		zap.L().Info("field corrected",
			zap.String("kind", string(fv.Kind)),
			zap.String("source", string(fv.Source)),
			zap.Float64("confidence", fv.Confidence),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(fv)
	},
}

func init() {
	correctCmd.Flags().StringVar(&correctKind, "kind", "", "field kind (required, e.g. tax-id, phone, date)")
	_ = correctCmd.MarkFlagRequired("kind")
	rootCmd.AddCommand(correctCmd)
}
