package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

type periodTransition func(l Ledger, ctx context.Context, year int, actor string) (accounting.FiscalPeriod, error)

func newPeriodCommand(env Env, actor *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "period",
		Short: "Move a fiscal year through its close lifecycle",
	}

	transitions := []struct {
		use   string
		short string
		fn    periodTransition
	}{
		{"begin-closing <year>", "Move an open year into closing", Ledger.BeginClosing},
		{"close <year>", "Close a year that is being closed", Ledger.ClosePeriod},
		{"reopen <year>", "Reopen a closed year (administrative)", Ledger.ReopenPeriod},
	}
	for _, t := range transitions {
		fn := t.fn
		cmd.AddCommand(&cobra.Command{
			Use:   t.use,
			Short: t.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				year, err := parseYear(args[0])
				if err != nil {
					return err
				}
				if *actor == "" {
					return fmt.Errorf("--actor is required")
				}
				return withLedger(cmd.Context(), env, func(l Ledger) error {
					p, err := fn(l, cmd.Context(), year, *actor)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", p.Year, p.State)
					return nil
				})
			},
		})
	}

	return cmd
}
