package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/counterparties"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

//go:embed puc.csv
var chart string

// seedNamespace derives stable idempotency keys so the seed can be rerun.
var seedNamespace = uuid.MustParse("5f0c7f3e-3a64-4c5e-9c3b-3b0f2f1a9d10")

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)
	ctx := shared.ContextWithActor(context.Background(), "seed")

	if err := db.Migrate(cfg.PGDSN, logger); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	ledger := app.NewLedger(cfg, pool, logger, app.LedgerOptions{})

	fmt.Println("→ Seeding chart of accounts...")
	if err := seedChart(ctx, ledger.Accounting); err != nil {
		log.Fatalf("seed chart: %v", err)
	}

	fmt.Println("→ Seeding counterparties...")
	partyID, err := seedCounterparty(ctx, ledger.Counterparties)
	if err != nil {
		log.Fatalf("seed counterparties: %v", err)
	}

	fmt.Println("→ Seeding journal entries...")
	if err := seedEntries(ctx, ledger.Accounting, partyID); err != nil {
		log.Fatalf("seed entries: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedChart(ctx context.Context, svc *accounting.Service) error {
	rows, err := coa.ReadAccounts(strings.NewReader(chart))
	if err != nil {
		return err
	}
	existing, err := svc.ListAccounts(ctx, "")
	if err != nil {
		return err
	}
	result, err := coa.Import(ctx, svc, coa.Plan(rows, existing))
	if err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d accounts rejected, first: %w", len(result.Errors), result.Errors[0])
	}
	fmt.Printf("  created %d, skipped %d\n", result.Created, result.Skipped)
	return nil
}

func seedCounterparty(ctx context.Context, svc *counterparties.Service) (int64, error) {
	in := counterparties.CreateInput{
		DocumentType:   counterparties.DocumentNIT,
		DocumentNumber: "900123456",
		Name:           "Distribuidora Andina S.A.S.",
		Email:          "contabilidad@andina.example",
	}
	party, err := svc.Create(ctx, in)
	if err == nil {
		return party.ID, nil
	}
	if !errors.Is(err, counterparties.ErrDuplicateDocument) {
		return 0, err
	}
	found, _, err := svc.List(ctx, counterparties.ListFilter{Search: in.DocumentNumber, Limit: 1})
	if err != nil {
		return 0, err
	}
	if len(found) == 0 {
		return 0, fmt.Errorf("counterparty %s vanished", in.DocumentNumber)
	}
	return found[0].ID, nil
}

func seedEntries(ctx context.Context, svc *accounting.Service, partyID int64) error {
	year := time.Now().Year()
	postings := []struct {
		key     string
		month   time.Month
		concept string
		debit   string
		credit  string
		amount  string
	}{
		{"capital", time.January, "Aporte de capital", "1110", "3105", "50000000.00"},
		{"sale-1", time.February, "Venta factura FV-001", "1305", "4135", "8500000.00"},
		{"cost-1", time.February, "Costo de la venta FV-001", "6135", "2205", "5100000.00"},
		{"payroll-1", time.March, "Nómina de marzo", "5105", "1110", "3200000.00"},
		{"collection-1", time.March, "Recaudo FV-001", "1110", "1305", "8500000.00"},
	}
	for _, p := range postings {
		key := uuid.NewSHA1(seedNamespace, []byte(fmt.Sprintf("%d/%s", year, p.key)))
		amount := decimal.RequireFromString(p.amount)
		entry, err := svc.CreateEntry(ctx, accounting.CreateEntryInput{
			Date:           time.Date(year, p.month, 15, 0, 0, 0, 0, time.UTC),
			CounterpartyID: partyID,
			Concept:        p.concept,
			CreatedBy:      "seed",
			IdempotencyKey: &key,
			Movements: []accounting.MovementInput{
				{AccountCode: p.debit, Debit: amount},
				{AccountCode: p.credit, Credit: amount},
			},
		})
		if err != nil {
			return fmt.Errorf("%s: %w", p.key, err)
		}
		fmt.Printf("  entry #%d %s\n", entry.ID, p.concept)
	}
	return nil
}
