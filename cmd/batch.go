package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docfix/internal/model"
)

var (
	batchManifest    string
	batchTemplate    string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch [document...]",
	Short: "Extract and correct fields from a batch of scanned documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		docs, err := collectDocuments(args, batchManifest, batchTemplate)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return eris.New("no documents given: pass file paths or --manifest")
		}

		if batchConcurrency > 0 {
			cfg.Batch.MaxConcurrentDocuments = batchConcurrency
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("processing batch",
			zap.Int("documents", len(docs)),
			zap.Int("concurrency", cfg.Batch.MaxConcurrentDocuments),
		)

		result, err := env.Orchestrator.ProcessBatch(ctx, docs)
		if err != nil {
			return eris.Wrap(err, "process batch")
		}

		zap.L().Info("batch complete",
			zap.Int("succeeded", result.Succeeded()),
			zap.Int("failed", result.Failed()),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchManifest, "manifest", "", "JSON file listing documents to process")
	batchCmd.Flags().StringVar(&batchTemplate, "template", "", "template ID applied to documents given as paths")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max documents processed in parallel (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// collectDocuments merges positional file paths with an optional JSON
// manifest of model.Document entries.
func collectDocuments(paths []string, manifest, templateID string) ([]model.Document, error) {
	var docs []model.Document

	if manifest != "" {
		data, err := os.ReadFile(manifest)
		if err != nil {
			return nil, eris.Wrap(err, "read manifest")
		}
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, eris.Wrap(err, "parse manifest")
		}
	}

	for _, p := range paths {
		docs = append(docs, model.Document{
			ID:         filepath.Base(p),
			Path:       p,
			TemplateID: templateID,
		})
	}

	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
	}
	return docs, nil
}
