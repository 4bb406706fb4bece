package commands

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

func newTrialBalanceCommand(env Env) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "trial-balance",
		Short: "Print the trial balance for a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRange(from, to)
			if err != nil {
				return err
			}
			return withLedger(cmd.Context(), env, func(l Ledger) error {
				tb, err := l.TrialBalance(cmd.Context(), r)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
				fmt.Fprintln(w, "CODE\tNAME\tOPENING\tDEBIT\tCREDIT\tCLOSING\t")
				for _, row := range tb.Rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n", row.Code, row.Name,
						accounting.FormatAmount(row.Opening), accounting.FormatAmount(row.Debit),
						accounting.FormatAmount(row.Credit), accounting.FormatAmount(row.Closing))
				}
				fmt.Fprintf(w, "\tTOTAL\t%s\t%s\t%s\t%s\t\n",
					accounting.FormatAmount(tb.TotalOpening), accounting.FormatAmount(tb.TotalDebit),
					accounting.FormatAmount(tb.TotalCredit), accounting.FormatAmount(tb.TotalClosing))
				if err := w.Flush(); err != nil {
					return err
				}
				if !tb.Balanced {
					return fmt.Errorf("trial balance is out of balance")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")

	return cmd
}

func newIntegrityCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "integrity",
		Short: "Verify global balance and void/reversal pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), env, func(l Ledger) error {
				report, err := l.CheckIntegrity(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "debits %s, credits %s\n",
					accounting.FormatAmount(report.TotalDebit), accounting.FormatAmount(report.TotalCredit))
				for _, id := range report.UnbalancedEntries {
					fmt.Fprintf(out, "unbalanced entry #%d\n", id)
				}
				for _, id := range report.BrokenReversals {
					fmt.Fprintf(out, "voided entry #%d is not netted by its reversal\n", id)
				}
				if !report.OK() {
					return fmt.Errorf("ledger integrity check failed")
				}
				fmt.Fprintln(out, "ok")
				return nil
			})
		},
	}
}

func parseRange(from, to string) (accounting.DateRange, error) {
	var r accounting.DateRange
	if from != "" {
		d, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return r, fmt.Errorf("--from: %w", err)
		}
		r.From = &d
	}
	if to != "" {
		d, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return r, fmt.Errorf("--to: %w", err)
		}
		r.To = &d
	}
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return r, fmt.Errorf("--to is before --from")
	}
	return r, nil
}

func parseYear(raw string) (int, error) {
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid year %q", raw)
	}
	return year, nil
}
