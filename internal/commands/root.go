package commands

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
)

// Ledger is the slice of the ledger engine the CLI drives.
type Ledger interface {
	CreateAccount(ctx context.Context, in accounting.CreateAccountInput) (accounting.Account, error)
	ListAccounts(ctx context.Context, search string) ([]accounting.Account, error)
	TrialBalance(ctx context.Context, r accounting.DateRange) (reports.TrialBalance, error)
	BeginClosing(ctx context.Context, year int, actor string) (accounting.FiscalPeriod, error)
	ClosePeriod(ctx context.Context, year int, actor string) (accounting.FiscalPeriod, error)
	ReopenPeriod(ctx context.Context, year int, actor string) (accounting.FiscalPeriod, error)
	CheckIntegrity(ctx context.Context) (accounting.IntegrityReport, error)
}

// Env supplies the resources commands open lazily, so --help never touches
// the database.
type Env struct {
	OpenLedger  func(ctx context.Context) (Ledger, func(), error)
	MigrateUp   func() error
	MigrateDown func(steps int) error
}

var errNotConfigured = errors.New("ledgerctl: backend not configured")

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(env Env) *cobra.Command {
	var actor string

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the double-entry ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&actor, "actor", os.Getenv("USER"), "user recorded in the audit log")

	rootCmd.AddCommand(
		newMigrateCommand(env),
		newImportAccountsCommand(env),
		newExportAccountsCommand(env),
		newTrialBalanceCommand(env),
		newPeriodCommand(env, &actor),
		newIntegrityCommand(env),
	)

	return rootCmd
}

// withLedger opens the ledger for the duration of fn.
func withLedger(ctx context.Context, env Env, fn func(Ledger) error) error {
	if env.OpenLedger == nil {
		return errNotConfigured
	}
	ledger, closeFn, err := env.OpenLedger(ctx)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(ledger)
}
