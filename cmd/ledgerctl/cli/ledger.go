package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/gl"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
)

var balanceCmd = &cobra.Command{
	Use:   "balance <account-id>",
	Short: "Show the running balance of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime, _ *app.Config) error {
			acc, err := rt.Accounts.Get(ctx, id)
			if err != nil {
				return err
			}
			balance, err := rt.Accounts.Balance(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s [%s] %s\n", acc.Code, acc.Name, acc.Nature, balance.StringFixed(2))
			return nil
		})
	},
}

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Compare stored balances with live GL entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime, _ *app.Config) error {
			drift, err := rt.Ledger.CheckIntegrity(ctx)
			if err != nil {
				return err
			}
			if err := printDrift(cmd, drift); err != nil {
				return err
			}
			if len(drift) > 0 {
				return fmt.Errorf("%d accounts out of balance", len(drift))
			}
			return nil
		})
	},
}

func printDrift(cmd *cobra.Command, drift []gl.Drift) error {
	out := cmd.OutOrStdout()
	if len(drift) == 0 {
		fmt.Fprintln(out, "all balances match the general ledger")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tCODE\tSTORED\tEXPECTED\tDIFF")
	for _, d := range drift {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", d.AccountID, d.Code,
			d.Stored.StringFixed(2), d.Expected.StringFixed(2), d.Stored.Sub(d.Expected).StringFixed(2))
	}
	return w.Flush()
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// parseDate accepts YYYY-MM-DD; empty input yields the zero time.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", raw)
	}
	return t, nil
}
