// Package cli implements the ledgerctl operator commands.
package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
)

var rootCmd = &cobra.Command{
	Use:          "ledgerctl",
	Short:        "Operate the Odyssey ledger",
	Long:         "Schema migrations, background job triggers and ledger inspection for the Odyssey posting engine.",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd, jobsCmd, balanceCmd, integrityCmd, provisionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the environment configuration shared with the server.
var loadConfig = app.LoadConfig

// withRuntime builds the ledger services for one command and closes them afterwards.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *app.Runtime, cfg *app.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build runtime", slog.Any("error", err))
		return err
	}
	defer rt.Close(logger)
	return fn(ctx, rt, cfg)
}
