package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Validate, list and sync the fund registry",
}

var registryValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the registry file and report validation errors",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := registry.LoadFile(cfg.Registry.Path)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s: %d funds OK\n", cfg.Registry.Path, reg.Len())
		return nil
	},
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registry funds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := registry.LoadFile(cfg.Registry.Path)
		if err != nil {
			return err
		}
		formatFunds(os.Stdout, reg.Funds())
		return nil
	},
}

var registrySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror the registry into the store's funds table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		reg, err := registry.LoadFile(cfg.Registry.Path)
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.SyncFunds(ctx, reg.Funds())
		if err != nil {
			return eris.Wrap(err, "registry sync")
		}
		zap.L().Info("registry synced", zap.Int64("rows", n), zap.Int("funds", reg.Len()))
		return nil
	},
}

func init() {
	registryCmd.AddCommand(registryValidateCmd)
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registrySyncCmd)
	rootCmd.AddCommand(registryCmd)
}

// formatFunds writes a tabular list of registry entries to w.
func formatFunds(out io.Writer, funds []model.FundEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tJURISDICTION\tSOURCE\tTICKERS\tFRESHNESS\tNAME")
	_, _ = fmt.Fprintln(w, "--\t------------\t------\t-------\t---------\t----")

	for _, f := range funds {
		name := f.Name
		if f.ExcludeFromLookthrough {
			name += " [excluded]"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			f.ID,
			f.Jurisdiction,
			f.Source,
			strings.Join(f.Tickers, ","),
			fmt.Sprintf("%dd", int(f.Freshness.Hours()/24)),
			truncate(name, 40),
		)
	}
	_ = w.Flush()
}
