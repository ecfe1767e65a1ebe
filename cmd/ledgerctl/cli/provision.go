package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/provisions"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Manage provision schedules",
}

var provisionFlags struct {
	name      string
	main      int64
	contra    int64
	expense   int64
	method    string
	rate      string
	fixed     string
	frequency string
	next      string
	asOf      string
	user      int64
}

var provisionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a provision schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := provisionFromFlags()
		if err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime, _ *app.Config) error {
			created, err := provisions.NewRepository(rt.Pool).Create(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "provision %d %q created, next calculation %s\n",
				created.ID, created.Name, created.NextCalculationDate.Format(time.DateOnly))
			return nil
		})
	},
}

var provisionDueCmd = &cobra.Command{
	Use:   "due",
	Short: "List provisions due for recalculation",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := asOfOrNow(provisionFlags.asOf)
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime, _ *app.Config) error {
			due, err := rt.Scheduler.GetDueProvisions(ctx, asOf)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMETHOD\tCURRENT\tNEXT")
			for _, p := range due {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Method,
					p.CurrentAmount.StringFixed(2), p.NextCalculationDate.Format(time.DateOnly))
			}
			return w.Flush()
		})
	},
}

var provisionSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Recalculate due provisions synchronously",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := asOfOrNow(provisionFlags.asOf)
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime, cfg *app.Config) error {
			user := provisionFlags.user
			if user == 0 {
				user = cfg.SystemUserID
			}
			report, err := rt.Scheduler.Sweep(ctx, asOf, user)
			if err != nil {
				return err
			}
			return printSweep(cmd, report)
		})
	},
}

func init() {
	f := provisionCreateCmd.Flags()
	f.StringVar(&provisionFlags.name, "name", "", "Provision name")
	f.Int64Var(&provisionFlags.main, "main-account", 0, "Account the provision is computed from")
	f.Int64Var(&provisionFlags.contra, "provision-account", 0, "Contra account holding the provision")
	f.Int64Var(&provisionFlags.expense, "expense-account", 0, "Expense account charged by adjustments")
	f.StringVar(&provisionFlags.method, "method", string(provisions.MethodPercentage), "PERCENTAGE, FIXED_AMOUNT or MANUAL")
	f.StringVar(&provisionFlags.rate, "rate", "0", "Percentage of the main account balance")
	f.StringVar(&provisionFlags.fixed, "fixed-amount", "0", "Target amount for FIXED_AMOUNT provisions")
	f.StringVar(&provisionFlags.frequency, "frequency", string(provisions.FrequencyMonthly), "MONTHLY, QUARTERLY or ANNUALLY")
	f.StringVar(&provisionFlags.next, "next", "", "First calculation date (YYYY-MM-DD)")
	_ = provisionCreateCmd.MarkFlagRequired("name")

	for _, c := range []*cobra.Command{provisionDueCmd, provisionSweepCmd} {
		c.Flags().StringVar(&provisionFlags.asOf, "as-of", "", "Cut-off date (YYYY-MM-DD), defaults to today")
	}
	provisionSweepCmd.Flags().Int64Var(&provisionFlags.user, "user", 0, "User recorded on the journals, defaults to the system user")
	provisionCmd.AddCommand(provisionCreateCmd, provisionDueCmd, provisionSweepCmd)
}

func provisionFromFlags() (provisions.Provision, error) {
	rate, err := decimal.NewFromString(provisionFlags.rate)
	if err != nil {
		return provisions.Provision{}, fmt.Errorf("invalid rate %q", provisionFlags.rate)
	}
	fixed, err := decimal.NewFromString(provisionFlags.fixed)
	if err != nil {
		return provisions.Provision{}, fmt.Errorf("invalid fixed amount %q", provisionFlags.fixed)
	}
	next, err := parseDate(provisionFlags.next)
	if err != nil {
		return provisions.Provision{}, err
	}
	if next.IsZero() {
		return provisions.Provision{}, errors.New("--next is required")
	}
	return provisions.Provision{
		Name:                strings.TrimSpace(provisionFlags.name),
		MainAccountID:       provisionFlags.main,
		ProvisionAccountID:  provisionFlags.contra,
		ExpenseAccountID:    provisionFlags.expense,
		Method:              provisions.Method(strings.ToUpper(provisionFlags.method)),
		Rate:                rate,
		FixedAmount:         fixed,
		CurrentAmount:       decimal.Zero,
		Frequency:           provisions.Frequency(strings.ToUpper(provisionFlags.frequency)),
		NextCalculationDate: next,
		IsActive:            true,
	}, nil
}

func asOfOrNow(raw string) (time.Time, error) {
	t, err := parseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	if t.IsZero() {
		return time.Now().UTC(), nil
	}
	return t, nil
}

func printSweep(cmd *cobra.Command, report provisions.SweepReport) error {
	out := cmd.OutOrStdout()
	if report.Skipped {
		fmt.Fprintln(out, "sweep skipped: another run holds the lock")
		return nil
	}
	fmt.Fprintf(out, "due %d, processed %d, posted %d, failed %d\n",
		report.Due, report.Processed, report.Posted, len(report.Failed))
	ids := make([]int64, 0, len(report.Failed))
	for id := range report.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Fprintf(out, "  provision %d: %s\n", id, report.Failed[id])
	}
	if len(ids) > 0 {
		return fmt.Errorf("%d provisions failed", len(ids))
	}
	return nil
}
