package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docfix/internal/feedback"
	"github.com/sells-group/docfix/internal/model"
)

var (
	feedbackOriginal   string
	feedbackCorrected  string
	feedbackKind       string
	feedbackDocumentID string
	feedbackAddToStore bool
	feedbackRejected   bool
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record a human review decision for a corrected field",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Ingestor.Submit(ctx, feedback.Submission{
			Original:   feedbackOriginal,
			Corrected:  feedbackCorrected,
			Kind:       model.FieldKind(feedbackKind),
			DocumentID: feedbackDocumentID,
			AddToStore: feedbackAddToStore,
			Rejected:   feedbackRejected,
		})
		if err != nil {
			return err
		}

		zap.L().Info("feedback recorded",
			zap.String("id", rec.ID),
			zap.Bool("accepted", rec.Accepted),
			zap.Bool("flagged", rec.Flagged),
			zap.Bool("applied", rec.Applied),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackOriginal, "original", "", "raw OCR text being reviewed (required)")
	feedbackCmd.Flags().StringVar(&feedbackCorrected, "corrected", "", "value the reviewer settled on")
	feedbackCmd.Flags().StringVar(&feedbackKind, "kind", "", "field kind of the value")
	feedbackCmd.Flags().StringVar(&feedbackDocumentID, "document", "", "source document ID")
	feedbackCmd.Flags().BoolVar(&feedbackAddToStore, "add-to-store", false, "learn the mapping immediately")
	feedbackCmd.Flags().BoolVar(&feedbackRejected, "rejected", false, "mark the proposed correction wrong with no replacement")
	_ = feedbackCmd.MarkFlagRequired("original")
	rootCmd.AddCommand(feedbackCmd)
}
