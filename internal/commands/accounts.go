package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
)

func newImportAccountsCommand(env Env) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import-accounts <file.csv>",
		Short: "Load a chart of accounts from CSV",
		Long: "Reads code, name and optional parent_code and class columns. Missing parents are\n" +
			"inferred from the longest known code prefix and root classes from the first digit.\n" +
			"Accounts that already exist are skipped, so the import can be rerun.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			rows, err := coa.ReadAccounts(f)
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			return withLedger(cmd.Context(), env, func(l Ledger) error {
				existing, err := l.ListAccounts(cmd.Context(), "")
				if err != nil {
					return err
				}
				plan := coa.Plan(rows, existing)
				out := cmd.OutOrStdout()

				if dryRun {
					for _, in := range plan {
						fmt.Fprintf(out, "%s\t%s\tparent=%s\tclass=%s\n", in.Code, in.Name, in.ParentCode, in.Class)
					}
					fmt.Fprintf(out, "%d account(s) planned\n", len(plan))
					return nil
				}

				result, err := coa.Import(cmd.Context(), l, plan)
				if err != nil {
					return err
				}
				for _, rowErr := range result.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %v\n", rowErr)
				}
				fmt.Fprintf(out, "created %d, skipped %d, failed %d\n", result.Created, result.Skipped, len(result.Errors))
				if len(result.Errors) > 0 {
					return fmt.Errorf("%d account(s) could not be imported", len(result.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the inferred plan without writing")

	return cmd
}

func newExportAccountsCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "export-accounts",
		Short: "Write the chart of accounts as CSV to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), env, func(l Ledger) error {
				accounts, err := l.ListAccounts(cmd.Context(), "")
				if err != nil {
					return err
				}
				return coa.WriteAccounts(cmd.OutOrStdout(), accounts)
			})
		},
	}
}
