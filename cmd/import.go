package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/docfix/internal/model"
)

var importPath string

// seedCorrection is one row of a YAML seed file loaded by the import command.
type seedCorrection struct {
	Original  string `yaml:"original"`
	Corrected string `yaml:"corrected"`
	Kind      string `yaml:"kind"`
	Confirmed bool   `yaml:"confirmed"`
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import seed corrections from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(importPath)
		if err != nil {
			return eris.Wrap(err, "read seed file")
		}

		var seeds []seedCorrection
		if err := yaml.Unmarshal(data, &seeds); err != nil {
			return eris.Wrap(err, "parse seed file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		imported := 0
		for _, s := range seeds {
			kind := model.FieldKind(s.Kind)
			if s.Original == "" || s.Corrected == "" {
				zap.L().Warn("skipping seed with empty original or corrected",
					zap.String("original", s.Original),
				)
				continue
			}
			if kind != model.KindAny && !kind.Valid() {
				zap.L().Warn("skipping seed with unknown kind",
					zap.String("original", s.Original),
					zap.String("kind", s.Kind),
				)
				continue
			}
			if _, err := st.Upsert(ctx, s.Original, s.Corrected, kind, s.Confirmed); err != nil {
				return eris.Wrapf(err, "import: upsert %q", s.Original)
			}
			imported++
		}

		zap.L().Info("import complete",
			zap.Int("imported", imported),
			zap.Int("skipped", len(seeds)-imported),
			zap.String("file", importPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importPath, "file", "", "path to YAML seed file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
