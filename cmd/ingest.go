package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/holdings-cli/internal/ingest"
	"github.com/sells-group/holdings-cli/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest the latest holdings filing for one or all registry funds",
	Long:  "Checks freshness, discovers candidate filings, downloads, parses, enriches and validates them, and promotes or rejects a new gold snapshot.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		fundID, _ := cmd.Flags().GetString("fund")
		all, _ := cmd.Flags().GetBool("all")
		asOfStr, _ := cmd.Flags().GetString("as-of")
		force, _ := cmd.Flags().GetBool("force")
		asJSON, _ := cmd.Flags().GetBool("json")

		if (fundID == "" && !all) || (fundID != "" && all) {
			return eris.New("ingest: exactly one of --fund or --all is required")
		}
		asOf, err := parseAsOf(asOfStr)
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		ids := []string{fundID}
		if all {
			ids = ids[:0]
			for _, f := range env.Registry.Funds() {
				ids = append(ids, f.ID)
			}
		}
		reqs := make([]ingest.Request, len(ids))
		for i, id := range ids {
			reqs[i] = ingest.Request{FundID: id, AsOf: asOf, Force: force}
		}

		outcomes := env.Orchestrator.IngestAll(cmd.Context(), reqs, cfg.Ingest.MaxConcurrentFunds)

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(outcomes); err != nil {
				return eris.Wrap(err, "ingest: encode outcomes")
			}
		} else {
			formatOutcomes(os.Stdout, outcomes)
		}

		code := ingestExitCode(outcomes)
		return exitWith(code, summarizeOutcomes(outcomes))
	},
}

func init() {
	ingestCmd.Flags().String("fund", "", "registry fund id to ingest")
	ingestCmd.Flags().Bool("all", false, "ingest every fund in the registry")
	ingestCmd.Flags().String("as-of", "", "backfill target date (YYYY-MM-DD); implies a refresh")
	ingestCmd.Flags().Bool("force", false, "ignore freshness and always refresh")
	ingestCmd.Flags().Bool("json", false, "print outcomes as JSON")
	rootCmd.AddCommand(ingestCmd)
}

// parseAsOf accepts an empty string (no target) or a YYYY-MM-DD date.
func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid as-of date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// formatOutcomes writes a tabular summary of ingestion outcomes to w.
func formatOutcomes(out io.Writer, outcomes []*model.IngestOutcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FUND\tSTATE\tAS_OF\tVERSION\tRUN\tREASON")
	_, _ = fmt.Fprintln(w, "----\t-----\t-----\t-------\t---\t------")

	for _, o := range outcomes {
		if o == nil {
			continue
		}
		asOf := ""
		if !o.AsOf.IsZero() {
			asOf = o.AsOf.Format(time.DateOnly)
		}
		version := ""
		if o.Version > 0 {
			version = fmt.Sprintf("v%d", o.Version)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.FundID,
			o.State,
			asOf,
			version,
			truncateID(o.RunID),
			o.Reason,
		)
	}
	_ = w.Flush()
}

// summarizeOutcomes counts outcomes per terminal state, e.g. "PROMOTE=2 SKIPPED=1".
func summarizeOutcomes(outcomes []*model.IngestOutcome) string {
	order := []model.State{model.StatePromote, model.StateSkipped, model.StateReject, model.StateFailed}
	counts := make(map[model.State]int, len(order))
	for _, o := range outcomes {
		if o != nil {
			counts[o.State]++
		}
	}
	parts := make([]string, 0, len(order))
	for _, s := range order {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, counts[s]))
		}
	}
	if len(parts) == 0 {
		return "ingest: no outcomes"
	}
	return "ingest: " + strings.Join(parts, " ")
}
