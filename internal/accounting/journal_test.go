package accounting_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accountingtest"
)

func TestCreateEntryDerivesAttribution(t *testing.T) {
	f := newFixture(t, "2024-03-10")

	entry := f.post("2024-03-10", "1105", "4135", "1000000.00")

	require.Equal(t, 2024, entry.FiscalYear)
	require.Equal(t, 3, entry.FiscalPeriod)
	require.Equal(t, accounting.EntryActive, entry.Status)
	require.Len(t, entry.Movements, 2)
	debit, credit := entry.Totals()
	requireDecimal(t, "1000000.00", debit)
	requireDecimal(t, "1000000.00", credit)
	assert.Equal(t, 1, f.metrics.Posted)
	assert.Contains(t, f.audit.Actions(), "journal.create")
}

func TestCreateEntryRejectsUnbalanced(t *testing.T) {
	f := newFixture(t, "2024-03-10")

	_, err := f.svc.CreateEntry(context.Background(), accounting.CreateEntryInput{
		Date:           date(t, "2024-03-10"),
		CounterpartyID: acme,
		Concept:        "unbalanced",
		Movements: []accounting.MovementInput{
			{AccountCode: "1105", Debit: dec("500.00")},
			{AccountCode: "4135", Credit: dec("400.00")},
		},
	})

	require.ErrorIs(t, err, accounting.ErrUnbalancedEntry)
	var unbalanced *accounting.UnbalancedEntryError
	require.ErrorAs(t, err, &unbalanced)
	requireDecimal(t, "100.00", unbalanced.Discrepancy)
	requireDecimal(t, "500.00", unbalanced.TotalDebit)
	requireDecimal(t, "400.00", unbalanced.TotalCredit)
	require.Empty(t, f.store.Entries())
}

func TestCreateEntryCollectsMovementErrors(t *testing.T) {
	f := newFixture(t, "2024-03-10")

	_, err := f.svc.CreateEntry(context.Background(), accounting.CreateEntryInput{
		Date:           date(t, "2024-03-10"),
		CounterpartyID: acme,
		Concept:        "bad lines",
		Movements: []accounting.MovementInput{
			{AccountCode: "1105", Debit: dec("10"), Credit: dec("10")},
			{AccountCode: "4135"},
			{AccountCode: "", Credit: dec("-5")},
		},
	})

	require.ErrorIs(t, err, accounting.ErrValidation)
	var verrs accounting.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	indexes := make([]int, 0, len(verrs))
	for _, v := range verrs {
		indexes = append(indexes, v.Index)
	}
	assert.Equal(t, []int{0, 1, 2, 2}, indexes)
}

func TestCreateEntryRequiresHeaderFields(t *testing.T) {
	f := newFixture(t, "2024-03-10")

	_, err := f.svc.CreateEntry(context.Background(), accounting.CreateEntryInput{})

	var verrs accounting.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := []string{}
	for _, v := range verrs {
		fields = append(fields, v.Field)
		assert.Equal(t, -1, v.Index)
	}
	assert.ElementsMatch(t, []string{"date", "counterparty_id", "concept"}, fields)
}

func TestCreateEntryRejectsEmptyMovements(t *testing.T) {
	f := newFixture(t, "2024-03-10")

	_, err := f.svc.CreateEntry(context.Background(), accounting.CreateEntryInput{
		Date:           date(t, "2024-03-10"),
		CounterpartyID: acme,
		Concept:        "empty",
	})

	var verr *accounting.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "movements", verr.Field)
}

func TestCreateEntryRoundsHalfUp(t *testing.T) {
	f := newFixture(t, "2024-03-10")

	entry, err := f.svc.CreateEntry(context.Background(), accounting.CreateEntryInput{
		Date:           date(t, "2024-03-10"),
		CounterpartyID: acme,
		Concept:        "rounding",
		Movements: []accounting.MovementInput{
			{AccountCode: "1105", Debit: dec("100.005")},
			{AccountCode: "4135", Credit: dec("100.01")},
		},
	})

	require.NoError(t, err)
	requireDecimal(t, "100.01", entry.Movements[0].Debit)
}

func TestCreateEntryUnknownAccountCarriesIndex(t *testing.T) {
	f := newFixture(t, "2024-03-10")

	_, err := f.svc.CreateEntry(context.Background(), accounting.CreateEntryInput{
		Date:           date(t, "2024-03-10"),
		CounterpartyID: acme,
		Concept:        "unknown",
		Movements: []accounting.MovementInput{
			{AccountCode: "1105", Debit: dec("10")},
			{AccountCode: "9999", Credit: dec("10")},
		},
	})

	var unknown *accounting.UnknownAccountError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, 1, unknown.Index)
	assert.Equal(t, "9999", unknown.Code)
}

func TestCreateEntryUnknownCounterparty(t *testing.T) {
	f := newFixture(t, "2024-03-10")

	_, err := f.svc.CreateEntry(context.Background(), accounting.CreateEntryInput{
		Date:           date(t, "2024-03-10"),
		CounterpartyID: 42,
		Concept:        "nobody",
		Movements: []accounting.MovementInput{
			{AccountCode: "1105", Debit: dec("10")},
			{AccountCode: "4135", Credit: dec("10")},
		},
	})

	require.ErrorIs(t, err, accounting.ErrCounterpartyNotFound)
}

func TestCreateEntryInClosedYearIsPeriodViolation(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	ctx := context.Background()
	_, err := f.svc.BeginClosing(ctx, 2024, "auditor")
	require.NoError(t, err)
	_, err = f.svc.ClosePeriod(ctx, 2024, "auditor")
	require.NoError(t, err)

	_, err = f.svc.CreateEntry(ctx, accounting.CreateEntryInput{
		Date:           date(t, "2024-03-10"),
		CounterpartyID: acme,
		Concept:        "late",
		Movements: []accounting.MovementInput{
			{AccountCode: "1105", Debit: dec("10")},
			{AccountCode: "4135", Credit: dec("10")},
		},
	})

	var violation *accounting.PeriodViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, 2024, violation.Year)
	assert.Equal(t, 3, violation.Period)
}

func TestMonth13Rules(t *testing.T) {
	ctx := context.Background()
	month13 := func(f *fixture, day string) error {
		_, err := f.svc.CreateEntry(ctx, accounting.CreateEntryInput{
			Date:           date(t, day),
			CounterpartyID: acme,
			Concept:        "closing adjustment",
			FiscalYear:     intPtr(2024),
			FiscalPeriod:   intPtr(13),
			Movements: []accounting.MovementInput{
				{AccountCode: "5105", Debit: dec("250.00")},
				{AccountCode: "2205", Credit: dec("250.00")},
			},
		})
		return err
	}

	t.Run("inside window", func(t *testing.T) {
		f := newFixture(t, "2025-01-15")
		require.NoError(t, month13(f, "2025-01-15"))
		entries := f.store.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, 13, entries[0].FiscalPeriod)
		assert.Equal(t, 2024, entries[0].FiscalYear)
	})

	t.Run("outside window", func(t *testing.T) {
		f := newFixture(t, "2025-05-01")
		require.ErrorIs(t, month13(f, "2025-05-01"), accounting.ErrPeriodViolation)
	})

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, "2025-01-15")
		_, err := f.svc.UpdatePeriodSettings(ctx, accounting.PeriodSettingsInput{Year: 2024, Month13Enabled: new(bool)})
		require.NoError(t, err)
		require.ErrorIs(t, month13(f, "2025-01-15"), accounting.ErrPeriodViolation)
	})

	t.Run("never derived", func(t *testing.T) {
		f := newFixture(t, "2025-01-15")
		entry := f.post("2025-01-15", "5105", "2205", "1.00")
		assert.Equal(t, 2025, entry.FiscalYear)
		assert.Equal(t, 1, entry.FiscalPeriod)
	})

	t.Run("explicit period out of range", func(t *testing.T) {
		f := newFixture(t, "2025-01-15")
		_, err := f.svc.CreateEntry(ctx, accounting.CreateEntryInput{
			Date:           date(t, "2025-01-15"),
			CounterpartyID: acme,
			Concept:        "bad period",
			FiscalPeriod:   intPtr(14),
			Movements: []accounting.MovementInput{
				{AccountCode: "5105", Debit: dec("1")},
				{AccountCode: "2205", Credit: dec("1")},
			},
		})
		require.ErrorIs(t, err, accounting.ErrValidation)
	})
}

func TestCreateEntryIsAtomic(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	f.store.FailOn("InsertMovements", errors.New("connection reset"))

	_, err := f.svc.CreateEntry(context.Background(), accounting.CreateEntryInput{
		Date:           date(t, "2024-03-10"),
		CounterpartyID: acme,
		Concept:        "atomic",
		Movements: []accounting.MovementInput{
			{AccountCode: "1105", Debit: dec("10")},
			{AccountCode: "4135", Credit: dec("10")},
		},
	})

	require.ErrorIs(t, err, accounting.ErrStorage)
	var storage *accounting.StorageError
	require.ErrorAs(t, err, &storage)
	assert.True(t, storage.Retryable())
	assert.Empty(t, f.store.Entries())
	assert.Zero(t, f.metrics.Posted)
}

func TestCreateEntryReplaysIdempotencyKey(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	key := uuid.New()
	in := accounting.CreateEntryInput{
		Date:           date(t, "2024-03-10"),
		CounterpartyID: acme,
		Concept:        "once",
		IdempotencyKey: &key,
		Movements: []accounting.MovementInput{
			{AccountCode: "1105", Debit: dec("10")},
			{AccountCode: "4135", Credit: dec("10")},
		},
	}

	first, err := f.svc.CreateEntry(context.Background(), in)
	require.NoError(t, err)
	second, err := f.svc.CreateEntry(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.store.Entries(), 1)
	assert.Equal(t, 1, f.metrics.Posted)
}

func TestListEntriesFiltersAndOrders(t *testing.T) {
	f := newFixture(t, "2024-06-30")
	ctx := context.Background()
	late := f.post("2024-05-02", "1105", "4135", "30")
	early := f.post("2024-04-01", "1105", "4135", "10")
	f.post("2024-06-15", "1105", "4135", "20")
	_, err := f.svc.VoidEntry(ctx, accounting.VoidInput{EntryID: late.ID, RequestedBy: "maria"})
	require.NoError(t, err)

	entries, total, err := f.svc.ListEntries(ctx, accounting.EntryFilter{To: datePtr(t, "2024-05-31")})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	assert.Equal(t, []int64{early.ID, late.ID}, []int64{entries[0].ID, entries[1].ID})

	active, _, err := f.svc.ListEntries(ctx, accounting.EntryFilter{Status: accounting.EntryActive})
	require.NoError(t, err)
	for _, e := range active {
		assert.Equal(t, accounting.EntryActive, e.Status)
	}
	assert.Len(t, active, 3)

	_, _, err = f.svc.ListEntries(ctx, accounting.EntryFilter{Status: "DRAFT"})
	require.ErrorIs(t, err, accounting.ErrValidation)
}

func TestGetEntryNotFound(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	_, err := f.svc.GetEntry(context.Background(), 404)
	require.ErrorIs(t, err, accounting.ErrEntryNotFound)
}

func TestCreateEntryRejectsAmountsBeyondColumnPrecision(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	ctx := context.Background()
	post := func(movements ...accounting.MovementInput) error {
		_, err := f.svc.CreateEntry(ctx, accounting.CreateEntryInput{
			Date:           date(t, "2024-03-10"),
			CounterpartyID: acme,
			Concept:        "oversized",
			Movements:      movements,
		})
		return err
	}

	err := post(
		accounting.MovementInput{AccountCode: "1105", Debit: dec("100000000000000")},
		accounting.MovementInput{AccountCode: "4135", Credit: dec("100000000000000")},
	)
	var verrs accounting.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 2)
	assert.Equal(t, "amount", verrs[0].Field)
	assert.Equal(t, 0, verrs[0].Index)
	assert.Equal(t, 1, verrs[1].Index)

	err = post(
		accounting.MovementInput{AccountCode: "1105", Debit: dec("6000000000000")},
		accounting.MovementInput{AccountCode: "1110", Debit: dec("6000000000000")},
		accounting.MovementInput{AccountCode: "4135", Credit: dec("6000000000000")},
		accounting.MovementInput{AccountCode: "3105", Credit: dec("6000000000000")},
	)
	var verr *accounting.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "movements", verr.Field)
	assert.False(t, errors.Is(err, accounting.ErrStorage))

	require.NoError(t, post(
		accounting.MovementInput{AccountCode: "1105", Debit: accounting.MaxAmount},
		accounting.MovementInput{AccountCode: "4135", Credit: accounting.MaxAmount},
	))
	assert.Len(t, f.store.Entries(), 1)
}

func TestCreateEntryRejectsReusedIdempotencyKey(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	ctx := context.Background()
	f.store.AddCounterparty(2, "Proveedor Uno")
	key := uuid.New()
	base := accounting.CreateEntryInput{
		Date:           date(t, "2024-03-10"),
		CounterpartyID: acme,
		Concept:        "once",
		IdempotencyKey: &key,
		Movements: []accounting.MovementInput{
			{AccountCode: "1105", Debit: dec("10")},
			{AccountCode: "4135", Credit: dec("10")},
		},
	}
	first, err := f.svc.CreateEntry(ctx, base)
	require.NoError(t, err)

	otherDate := base
	otherDate.Date = date(t, "2024-03-11")
	otherParty := base
	otherParty.CounterpartyID = 2
	otherAmount := base
	otherAmount.Movements = []accounting.MovementInput{
		{AccountCode: "1105", Debit: dec("11")},
		{AccountCode: "4135", Credit: dec("11")},
	}
	for name, in := range map[string]accounting.CreateEntryInput{
		"date":         otherDate,
		"counterparty": otherParty,
		"amount":       otherAmount,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateEntry(ctx, in)
			require.ErrorIs(t, err, accounting.ErrDuplicateSubmission)
		})
	}

	replay, err := f.svc.CreateEntry(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)
	assert.Len(t, f.store.Entries(), 1)
}

// boundedRepo models a connection pool with a fixed number of connections:
// each transaction and each directory lookup holds one while it runs.
type boundedRepo struct {
	*accountingtest.Store
	conns chan struct{}
}

func newBoundedRepo(store *accountingtest.Store, size int) *boundedRepo {
	return &boundedRepo{Store: store, conns: make(chan struct{}, size)}
}

func (r *boundedRepo) acquire(ctx context.Context) error {
	select {
	case r.conns <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *boundedRepo) release() { <-r.conns }

func (r *boundedRepo) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.release()
	return r.Store.WithTx(ctx, fn)
}

func (r *boundedRepo) ReadTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.release()
	return r.Store.ReadTx(ctx, fn)
}

func (r *boundedRepo) ResolveCounterparty(ctx context.Context, id int64) (accounting.CounterpartyRef, error) {
	if err := r.acquire(ctx); err != nil {
		return accounting.CounterpartyRef{}, err
	}
	defer r.release()
	return r.Store.ResolveCounterparty(ctx, id)
}

func TestCreateEntryHoldsOneConnectionAtATime(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	repo := newBoundedRepo(f.store, 1)
	svc := accounting.NewService(repo, f.audit, accounting.NewDualPIN(accountantPIN, managerPIN))
	svc.WithNow(f.clock)
	svc.WithCounterparties(repo)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	entry, err := svc.CreateEntry(ctx, accounting.CreateEntryInput{
		Date:           date(t, "2024-03-10"),
		CounterpartyID: acme,
		Concept:        "single connection",
		Movements: []accounting.MovementInput{
			{AccountCode: "1105", Debit: dec("10")},
			{AccountCode: "4135", Credit: dec("10")},
		},
	})
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)

	_, err = svc.CreateEntry(ctx, accounting.CreateEntryInput{
		Date:           date(t, "2024-03-10"),
		CounterpartyID: 42,
		Concept:        "unknown",
		Movements: []accounting.MovementInput{
			{AccountCode: "1105", Debit: dec("10")},
			{AccountCode: "4135", Credit: dec("10")},
		},
	})
	require.ErrorIs(t, err, accounting.ErrCounterpartyNotFound)
}
