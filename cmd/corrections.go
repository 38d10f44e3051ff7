package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docfix/internal/export"
	"github.com/sells-group/docfix/internal/model"
)

var (
	correctionsFormat string
	correctionsOut    string
)

var correctionsCmd = &cobra.Command{
	Use:   "corrections",
	Short: "Export the active corrections store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		entries, err := st.Export(ctx)
		if err != nil {
			return eris.Wrap(err, "export corrections")
		}

		switch correctionsFormat {
		case "table":
			if len(entries) == 0 {
				fmt.Fprintln(os.Stderr, "No corrections found.")
				return nil
			}
			formatCorrections(os.Stdout, entries, cfg.Engine.ConfirmationThreshold)
			return nil
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		case "xlsx":
			if correctionsOut == "" {
				return eris.New("--out is required with --format xlsx")
			}
			if err := export.WriteXLSX(correctionsOut, entries, cfg.Engine.ConfirmationThreshold); err != nil {
				return eris.Wrap(err, "write xlsx")
			}
			zap.L().Info("corrections exported",
				zap.Int("entries", len(entries)),
				zap.String("path", correctionsOut),
			)
			return nil
		default:
			return eris.Errorf("unknown format: %s (want table, json, or xlsx)", correctionsFormat)
		}
	},
}

func init() {
	correctionsCmd.Flags().StringVar(&correctionsFormat, "format", "table", "output format (table, json, xlsx)")
	correctionsCmd.Flags().StringVar(&correctionsOut, "out", "", "output file path for xlsx format")
	rootCmd.AddCommand(correctionsCmd)
}

// formatCorrections writes a tabular list of correction entries to w.
func formatCorrections(out io.Writer, entries []model.CorrectionEntry, confirmThreshold int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ORIGINAL\tCORRECTED\tKIND\tUSES\tHUMAN\tCONF\tLAST_CONFIRMED")
	_, _ = fmt.Fprintln(w, "--------\t---------\t----\t----\t-----\t----\t--------------")

	for _, e := range entries {
		kind := string(e.KindHint)
		if kind == "" {
			kind = "(global)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.2f\t%s\n",
			e.Original,
			e.Corrected,
			kind,
			e.UsageCount,
			e.HumanConfirms,
			e.Confidence(confirmThreshold),
			e.LastConfirmed.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
