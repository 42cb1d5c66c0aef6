package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/resolve"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve TICKER...",
	Short: "Resolve fund tickers to their constituent holdings",
	Long:  "Consults the configured source chain (local gold snapshots first, then remote services) and prints holdings with country, sector and asset class exposures.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxPositions, _ := cmd.Flags().GetInt("max-positions")
		asJSON, _ := cmd.Flags().GetBool("json")
		if cmd.Flags().Changed("max-positions") {
			cfg.Resolve.MaxPositions = maxPositions
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		outcomes := env.Chain.ResolveMany(cmd.Context(), args)

		if asJSON {
			if err := encodeResolutions(os.Stdout, outcomes); err != nil {
				return err
			}
		} else {
			for _, o := range outcomes {
				formatResolution(os.Stdout, o)
			}
		}

		code := resolveExitCode(outcomes)
		return exitWith(code, fmt.Sprintf("resolve: %d ticker(s)", len(outcomes)))
	},
}

func init() {
	resolveCmd.Flags().Int("max-positions", 0, "keep only the top N holdings, renormalised to 100 (0 keeps all)")
	resolveCmd.Flags().Bool("json", false, "print results as JSON")
	rootCmd.AddCommand(resolveCmd)
}

// resolution is the JSON shape of one resolve outcome.
type resolution struct {
	Ticker   string                `json:"ticker"`
	Result   *model.HoldingsResult `json:"result,omitempty"`
	Error    string                `json:"error,omitempty"`
	Attempts []model.SourceAttempt `json:"attempts,omitempty"`
}

func toResolution(o resolve.Outcome) resolution {
	r := resolution{Ticker: o.Ticker, Result: o.Result}
	if o.Err != nil {
		r.Error = o.Err.Error()
		var re *model.ResolutionExhausted
		if errors.As(o.Err, &re) {
			r.Attempts = re.Attempts
		}
	}
	return r
}

func encodeResolutions(out io.Writer, outcomes []resolve.Outcome) error {
	rs := make([]resolution, len(outcomes))
	for i, o := range outcomes {
		rs[i] = toResolution(o)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rs); err != nil {
		return eris.Wrap(err, "resolve: encode results")
	}
	return nil
}

// formatResolution writes a human-readable block for one ticker to out.
func formatResolution(out io.Writer, o resolve.Outcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	if o.Err != nil {
		_, _ = fmt.Fprintf(w, "%s\tERROR\t%s\n\n", o.Ticker, o.Err)
		return
	}
	r := o.Result
	if r.Status == model.ResolutionNotApplicable {
		_, _ = fmt.Fprintf(w, "%s\tNOT APPLICABLE\t%s\n\n", r.Ticker, r.Name)
		return
	}

	source := r.Source
	if r.FromCache {
		source += " (cached)"
	}
	asOf := ""
	if !r.AsOf.IsZero() {
		asOf = r.AsOf.Format(time.DateOnly)
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\tsource=%s\tas_of=%s\tholdings=%d\n", r.Ticker, r.Name, source, asOf, len(r.Holdings))

	_, _ = fmt.Fprintln(w, "  NAME\tISIN\tWEIGHT\tCOUNTRY\tSECTOR")
	for _, h := range r.Holdings {
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%.2f%%\t%s\t%s\n", truncate(h.Name, 40), h.ISIN, h.WeightPct, h.Country, h.Sector)
	}
	writeExposures(w, "COUNTRIES", r.Countries)
	writeExposures(w, "SECTORS", r.Sectors)
	writeExposures(w, "ASSET CLASSES", r.AssetClasses)
	_, _ = fmt.Fprintln(w)
}

func writeExposures(w io.Writer, title string, es []model.Exposure) {
	if len(es) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "  %s\n", title)
	for _, e := range es {
		_, _ = fmt.Fprintf(w, "    %s\t%.2f%%\n", e.Key, e.WeightPct)
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
