package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docfix/internal/model"
)

var (
	analyzeApply  bool
	analyzeJSON   bool
	analyzeWindow time.Duration
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Mine feedback history for recurring correction patterns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if analyzeWindow > 0 {
			cfg.Analyzer.WindowHours = int(analyzeWindow.Hours())
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var (
			proposals []model.ProposedEntry
			applied   int
		)
		if analyzeApply {
			proposals, applied, err = env.Analyzer.Run(ctx)
		} else {
			proposals, err = env.Analyzer.Analyze(ctx)
		}
		if err != nil {
			return eris.Wrap(err, "analyze feedback")
		}

		zap.L().Info("analysis complete",
			zap.Int("proposals", len(proposals)),
			zap.Int("applied", applied),
		)

		if analyzeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(proposals)
		}

		if len(proposals) == 0 {
			fmt.Fprintln(os.Stderr, "No recurring patterns found.")
			return nil
		}
		formatProposals(os.Stdout, proposals)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show correction and feedback statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		snapshot, err := env.Collector.Collect(ctx)
		if err != nil {
			return eris.Wrap(err, "collect stats")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeApply, "apply", false, "promote high-confidence proposals into the store")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "emit proposals as JSON instead of a table")
	analyzeCmd.Flags().DurationVar(&analyzeWindow, "window", 0, "feedback window to mine (e.g. 72h, default from config)")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(statsCmd)
}

// formatProposals writes a tabular list of mined proposals to w.
func formatProposals(out io.Writer, proposals []model.ProposedEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ORIGINAL\tCORRECTED\tKIND\tSEEN\tACCEPT\tCONF\tAUTO")
	_, _ = fmt.Fprintln(w, "--------\t---------\t----\t----\t------\t----\t----")

	for _, p := range proposals {
		kind := string(p.Kind)
		if kind == "" {
			kind = "(global)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%.2f\t%v\n",
			p.Original,
			p.Corrected,
			kind,
			p.Occurrences,
			p.AcceptRate,
			p.Confidence,
			p.AutoApply,
		)
	}
	_ = w.Flush()
}
