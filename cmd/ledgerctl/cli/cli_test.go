package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/gl"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/provisions"
)

func captured() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	return cmd, &buf
}

func TestCommandTree(t *testing.T) {
	want := map[string][]string{
		"migrate":   {"up", "down", "version"},
		"jobs":      {"trigger", "stats", "scheduled"},
		"provision": {"create", "due", "sweep"},
	}
	for parent, children := range want {
		cmd, _, err := rootCmd.Find([]string{parent})
		require.NoError(t, err)
		for _, child := range children {
			sub, _, err := cmd.Find([]string{child})
			require.NoError(t, err, "%s %s", parent, child)
			require.Equal(t, child, sub.Name())
		}
	}
	for _, leaf := range []string{"balance", "integrity"} {
		cmd, _, err := rootCmd.Find([]string{leaf})
		require.NoError(t, err)
		require.Equal(t, leaf, cmd.Name())
	}
}

func TestConfigErrorStopsCommands(t *testing.T) {
	original := loadConfig
	t.Cleanup(func() { loadConfig = original })
	loadConfig = func() (*app.Config, error) { return nil, errors.New("PG_DSN must be provided") }

	rootCmd.SetArgs([]string{"migrate", "version"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	err := rootCmd.Execute()
	require.EqualError(t, err, "PG_DSN must be provided")
}

func TestParseHelpers(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	_, err = parseID("0")
	require.Error(t, err)
	_, err = parseID("abc")
	require.Error(t, err)

	zero, err := parseDate("")
	require.NoError(t, err)
	require.True(t, zero.IsZero())
	d, err := parseDate("2024-02-29")
	require.NoError(t, err)
	require.Equal(t, 29, d.Day())
	_, err = parseDate("29/02/2024")
	require.Error(t, err)
}

func TestJobsCLIRequiresClients(t *testing.T) {
	c := &JobsCLI{}
	_, err := c.Trigger(context.Background(), "sweep", time.Time{}, 0)
	require.EqualError(t, err, "jobs cli: client not configured")

	var nilCLI *JobsCLI
	_, err = nilCLI.InspectQueue()
	require.Error(t, err)
}

func TestPrintDrift(t *testing.T) {
	cmd, out := captured()
	require.NoError(t, printDrift(cmd, nil))
	require.Contains(t, out.String(), "all balances match")

	cmd, out = captured()
	require.NoError(t, printDrift(cmd, []gl.Drift{{
		AccountID: 3, Code: "1100",
		Stored:   decimal.NewFromInt(150),
		Expected: decimal.NewFromInt(100),
	}}))
	require.Contains(t, out.String(), "1100")
	require.Contains(t, out.String(), "50.00")
}

func TestPrintSweep(t *testing.T) {
	cmd, out := captured()
	require.NoError(t, printSweep(cmd, provisions.SweepReport{Skipped: true}))
	require.Contains(t, out.String(), "skipped")

	cmd, out = captured()
	err := printSweep(cmd, provisions.SweepReport{Due: 3, Processed: 3, Posted: 1, Failed: map[int64]string{9: "boom", 4: "bad"}})
	require.EqualError(t, err, "2 provisions failed")
	require.Contains(t, out.String(), "due 3, processed 3, posted 1, failed 2")
	require.Less(t, bytes.Index(out.Bytes(), []byte("provision 4")), bytes.Index(out.Bytes(), []byte("provision 9")))
}

func TestProvisionFromFlags(t *testing.T) {
	saved := provisionFlags
	t.Cleanup(func() { provisionFlags = saved })

	provisionFlags.name = " Doubtful debts "
	provisionFlags.main, provisionFlags.contra, provisionFlags.expense = 1, 2, 3
	provisionFlags.method = "percentage"
	provisionFlags.rate = "2.5"
	provisionFlags.fixed = "0"
	provisionFlags.frequency = "quarterly"
	provisionFlags.next = "2024-03-31"

	p, err := provisionFromFlags()
	require.NoError(t, err)
	require.Equal(t, "Doubtful debts", p.Name)
	require.Equal(t, provisions.MethodPercentage, p.Method)
	require.Equal(t, provisions.FrequencyQuarterly, p.Frequency)
	require.True(t, p.Rate.Equal(decimal.RequireFromString("2.5")))
	require.NoError(t, p.Validate())

	provisionFlags.next = ""
	_, err = provisionFromFlags()
	require.EqualError(t, err, "--next is required")

	provisionFlags.next = "2024-03-31"
	provisionFlags.rate = "x"
	_, err = provisionFromFlags()
	require.Error(t, err)
}
