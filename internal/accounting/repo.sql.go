package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// LockMode selects the row lock taken on a fiscal period.
type LockMode int

const (
	// LockShare blocks state changes while postings proceed.
	LockShare LockMode = iota
	// LockUpdate serialises administrative changes.
	LockUpdate
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetAccount(ctx context.Context, code string) (Account, error)
	InsertAccount(ctx context.Context, acc Account) error
	ListAccounts(ctx context.Context) ([]Account, error)
	AccountUsage(ctx context.Context, code string) (children, movements int, err error)
	DeleteAccount(ctx context.Context, code string) error

	EnsurePeriod(ctx context.Context, defaults FiscalPeriod, lock LockMode) (FiscalPeriod, error)
	UpdatePeriod(ctx context.Context, period FiscalPeriod) error

	FindEntryBySourceRef(ctx context.Context, ref uuid.UUID) (JournalEntry, bool, error)
	InsertEntry(ctx context.Context, in NewEntry) (JournalEntry, error)
	InsertMovements(ctx context.Context, entryID int64, movements []MovementInput) ([]Movement, error)
	GetEntry(ctx context.Context, id int64) (JournalEntry, error)
	GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, int, error)
	MarkVoided(ctx context.Context, id int64, mark VoidMark) (bool, error)

	SumMovements(ctx context.Context, q BalanceQuery) ([]AccountTotals, error)
	ListMovementLines(ctx context.Context, q LineQuery) ([]MovementLine, error)
	FindUnbalancedEntries(ctx context.Context) ([]int64, error)
	FindBrokenReversals(ctx context.Context) ([]int64, error)
}

// Repository persists ledger entities in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in a read-committed transaction. Row locks and the status
// compare-and-set serialise conflicting writers; a blocked void re-reads the
// winner's committed status instead of failing serialisation.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ReadTx runs fn in a repeatable-read, read-only transaction so multi-query
// reports see a single snapshot.
func (r *Repository) ReadTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("accounting repository not initialised")
	}
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return db.WithTxOptions(ctx, r.pool, opts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNumericOutOfRange   = "22003"
)

func pgErrorCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func (r *txRepository) GetAccount(ctx context.Context, code string) (Account, error) {
	var a Account
	var class string
	err := r.tx.QueryRow(ctx, `SELECT code, name, COALESCE(parent_code, ''), COALESCE(class, ''), created_at
FROM accounts WHERE code=$1`, code).Scan(&a.Code, &a.Name, &a.ParentCode, &class, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
		}
		return Account{}, err
	}
	a.Class = AccountClass(class)
	return a, nil
}

func (r *txRepository) InsertAccount(ctx context.Context, acc Account) error {
	var class any
	if acc.IsRoot() {
		class = string(acc.Class)
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO accounts (code, name, parent_code, class, created_at) VALUES ($1,$2,$3,$4,$5)`,
		acc.Code, acc.Name, nullString(acc.ParentCode), class, acc.CreatedAt)
	if err != nil {
		switch code, _ := pgErrorCode(err); code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrAccountExists, acc.Code)
		case pgForeignKeyViolation:
			return &ValidationError{Field: "parent_code", Index: -1, Message: fmt.Sprintf("parent account %q does not exist", acc.ParentCode)}
		}
		return err
	}
	return nil
}

func (r *txRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT code, name, COALESCE(parent_code, ''), COALESCE(class, ''), created_at FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		var class string
		if err := rows.Scan(&a.Code, &a.Name, &a.ParentCode, &class, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Class = AccountClass(class)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) AccountUsage(ctx context.Context, code string) (int, int, error) {
	var children, movements int
	err := r.tx.QueryRow(ctx, `SELECT
    (SELECT COUNT(*) FROM accounts WHERE parent_code=$1),
    (SELECT COUNT(*) FROM journal_movements WHERE account_code=$1)`, code).Scan(&children, &movements)
	return children, movements, err
}

func (r *txRepository) DeleteAccount(ctx context.Context, code string) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE code=$1`, code)
	if err != nil {
		if c, _ := pgErrorCode(err); c == pgForeignKeyViolation {
			return fmt.Errorf("%w: %s", ErrAccountInUse, code)
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, code)
	}
	return nil
}

func (r *txRepository) EnsurePeriod(ctx context.Context, defaults FiscalPeriod, lock LockMode) (FiscalPeriod, error) {
	_, err := r.tx.Exec(ctx, `INSERT INTO fiscal_periods (year, state, adjustment_start, adjustment_end, month13_enabled, pins_required)
VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (year) DO NOTHING`,
		defaults.Year, string(defaults.State), defaults.AdjustmentStart, defaults.AdjustmentEnd, defaults.Month13Enabled, defaults.PinsRequired)
	if err != nil {
		return FiscalPeriod{}, err
	}
	clause := "FOR SHARE"
	if lock == LockUpdate {
		clause = "FOR UPDATE"
	}
	var (
		p        FiscalPeriod
		state    string
		closedBy *string
	)
	err = r.tx.QueryRow(ctx, `SELECT year, state, adjustment_start, adjustment_end, month13_enabled, pins_required, closed_by, closed_at, notes
FROM fiscal_periods WHERE year=$1 `+clause, defaults.Year).
		Scan(&p.Year, &state, &p.AdjustmentStart, &p.AdjustmentEnd, &p.Month13Enabled, &p.PinsRequired, &closedBy, &p.ClosedAt, &p.Notes)
	if err != nil {
		return FiscalPeriod{}, err
	}
	p.State = PeriodState(state)
	if closedBy != nil {
		p.ClosedBy = *closedBy
	}
	return p, nil
}

func (r *txRepository) UpdatePeriod(ctx context.Context, p FiscalPeriod) error {
	_, err := r.tx.Exec(ctx, `UPDATE fiscal_periods SET state=$2, adjustment_start=$3, adjustment_end=$4, month13_enabled=$5,
pins_required=$6, closed_by=$7, closed_at=$8, notes=$9, updated_at=NOW() WHERE year=$1`,
		p.Year, string(p.State), p.AdjustmentStart, p.AdjustmentEnd, p.Month13Enabled, p.PinsRequired, nullString(p.ClosedBy), p.ClosedAt, p.Notes)
	return err
}

const entryColumns = `id, entry_date, counterparty_id, concept, notes, fiscal_year, fiscal_period, status,
voided_by, voided_at, void_reason, corrected_by, reverses, source_ref::text, created_by, created_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var (
		e                    JournalEntry
		status               string
		voidedBy, voidReason *string
		sourceRef            *string
	)
	err := row.Scan(&e.ID, &e.Date, &e.CounterpartyID, &e.Concept, &e.Notes, &e.FiscalYear, &e.FiscalPeriod, &status,
		&voidedBy, &e.VoidedAt, &voidReason, &e.CorrectedBy, &e.Reverses, &sourceRef, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	e.Status = EntryStatus(status)
	if voidedBy != nil {
		e.VoidedBy = *voidedBy
	}
	if voidReason != nil {
		e.VoidReason = *voidReason
	}
	if sourceRef != nil {
		if ref, err := uuid.Parse(*sourceRef); err == nil {
			e.SourceRef = &ref
		}
	}
	return e, nil
}

func (r *txRepository) loadEntry(ctx context.Context, query string, args ...any) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	byEntry, err := r.movementsFor(ctx, []int64{entry.ID})
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Movements = byEntry[entry.ID]
	return entry, nil
}

func (r *txRepository) movementsFor(ctx context.Context, ids []int64) (map[int64][]Movement, error) {
	out := make(map[int64][]Movement, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_code, debit::text, credit::text
FROM journal_movements WHERE entry_id = ANY($1) ORDER BY entry_id, id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m             Movement
			debit, credit string
		)
		if err := rows.Scan(&m.ID, &m.EntryID, &m.AccountCode, &debit, &credit); err != nil {
			return nil, err
		}
		if m.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, err
		}
		if m.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, err
		}
		out[m.EntryID] = append(out[m.EntryID], m)
	}
	return out, rows.Err()
}

func (r *txRepository) FindEntryBySourceRef(ctx context.Context, ref uuid.UUID) (JournalEntry, bool, error) {
	entry, err := r.loadEntry(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE source_ref=$1`, ref.String())
	if errors.Is(err, ErrEntryNotFound) {
		return JournalEntry{}, false, nil
	}
	if err != nil {
		return JournalEntry{}, false, err
	}
	return entry, true, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, in NewEntry) (JournalEntry, error) {
	var sourceRef any
	if in.SourceRef != nil {
		sourceRef = in.SourceRef.String()
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	entry := JournalEntry{
		Date:           in.Date,
		CounterpartyID: in.CounterpartyID,
		Concept:        in.Concept,
		Notes:          in.Notes,
		FiscalYear:     in.FiscalYear,
		FiscalPeriod:   in.FiscalPeriod,
		Status:         EntryActive,
		Reverses:       in.Reverses,
		SourceRef:      in.SourceRef,
		CreatedBy:      in.CreatedBy,
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (entry_date, counterparty_id, concept, notes, fiscal_year, fiscal_period, status, reverses, source_ref, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,'ACTIVE',$7,$8,$9,$10) RETURNING id, created_at`,
		in.Date, in.CounterpartyID, in.Concept, in.Notes, in.FiscalYear, in.FiscalPeriod, in.Reverses, sourceRef, in.CreatedBy, createdAt).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		switch code, constraint := pgErrorCode(err); {
		case code == pgUniqueViolation && constraint == "uq_journal_entries_source_ref":
			return JournalEntry{}, ErrDuplicateSubmission
		case code == pgForeignKeyViolation && strings.Contains(constraint, "counterparty"):
			return JournalEntry{}, fmt.Errorf("%w: %d", ErrCounterpartyNotFound, in.CounterpartyID)
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertMovements(ctx context.Context, entryID int64, movements []MovementInput) ([]Movement, error) {
	out := make([]Movement, 0, len(movements))
	for i, m := range movements {
		row := Movement{EntryID: entryID, AccountCode: m.AccountCode, Debit: m.Debit, Credit: m.Credit}
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_movements (entry_id, account_code, debit, credit) VALUES ($1,$2,$3,$4) RETURNING id`,
			entryID, m.AccountCode, FormatAmount(m.Debit), FormatAmount(m.Credit)).Scan(&row.ID)
		if err != nil {
			switch code, _ := pgErrorCode(err); code {
			case pgForeignKeyViolation:
				return nil, &UnknownAccountError{Code: m.AccountCode, Index: i}
			case pgNumericOutOfRange:
				return nil, &ValidationError{Field: "amount", Index: i, Message: "exceeds " + FormatAmount(MaxAmount)}
			}
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *txRepository) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	return r.loadEntry(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id)
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	return r.loadEntry(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id)
}

func (r *txRepository) ListEntries(ctx context.Context, f EntryFilter) ([]JournalEntry, int, error) {
	var w whereClause
	if f.From != nil {
		w.add("entry_date >= ?", *f.From)
	}
	if f.To != nil {
		w.add("entry_date <= ?", *f.To)
	}
	if f.CounterpartyID > 0 {
		w.add("counterparty_id = ?", f.CounterpartyID)
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	var total int
	if err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + entryColumns + ` FROM journal_entries` + w.String() + ` ORDER BY entry_date, id`
	args := append([]any(nil), w.args...)
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	var (
		entries []JournalEntry
		ids     []int64
	)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		entries = append(entries, e)
		ids = append(ids, e.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	byEntry, err := r.movementsFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range entries {
		entries[i].Movements = byEntry[entries[i].ID]
	}
	return entries, total, nil
}

func (r *txRepository) MarkVoided(ctx context.Context, id int64, mark VoidMark) (bool, error) {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='VOIDED', voided_by=$2, voided_at=$3, void_reason=$4, corrected_by=$5
WHERE id=$1 AND status='ACTIVE'`, id, mark.By, mark.At, mark.Reason, mark.CorrectedBy)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *txRepository) SumMovements(ctx context.Context, q BalanceQuery) ([]AccountTotals, error) {
	var w whereClause
	if q.From != nil {
		w.add("e.entry_date >= ?", *q.From)
	}
	if q.To != nil {
		w.add("e.entry_date <= ?", *q.To)
	}
	if q.Before != nil {
		w.add("e.entry_date < ?", *q.Before)
	}
	if q.AccountCode != "" {
		w.add("m.account_code = ?", q.AccountCode)
	}
	if q.CounterpartyID > 0 {
		w.add("e.counterparty_id = ?", q.CounterpartyID)
	}
	rows, err := r.tx.Query(ctx, `SELECT m.account_code, COALESCE(SUM(m.debit), 0)::text, COALESCE(SUM(m.credit), 0)::text
FROM journal_movements m JOIN journal_entries e ON e.id = m.entry_id`+w.String()+`
GROUP BY m.account_code ORDER BY m.account_code`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountTotals
	for rows.Next() {
		var (
			t             AccountTotals
			debit, credit string
		)
		if err := rows.Scan(&t.AccountCode, &debit, &credit); err != nil {
			return nil, err
		}
		if t.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, err
		}
		if t.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *txRepository) ListMovementLines(ctx context.Context, q LineQuery) ([]MovementLine, error) {
	var w whereClause
	if q.From != nil {
		w.add("e.entry_date >= ?", *q.From)
	}
	if q.To != nil {
		w.add("e.entry_date <= ?", *q.To)
	}
	if q.AccountCode != "" {
		w.add("m.account_code = ?", q.AccountCode)
	}
	if q.CounterpartyID > 0 {
		w.add("e.counterparty_id = ?", q.CounterpartyID)
	}
	rows, err := r.tx.Query(ctx, `SELECT m.entry_id, m.id, e.entry_date, e.concept, e.counterparty_id, COALESCE(c.name, ''),
m.account_code, a.name, m.debit::text, m.credit::text, e.status
FROM journal_movements m
JOIN journal_entries e ON e.id = m.entry_id
JOIN accounts a ON a.code = m.account_code
LEFT JOIN counterparties c ON c.id = e.counterparty_id`+w.String()+`
ORDER BY e.entry_date, e.id, m.id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MovementLine
	for rows.Next() {
		var (
			l                     MovementLine
			debit, credit, status string
		)
		if err := rows.Scan(&l.EntryID, &l.MovementID, &l.Date, &l.Concept, &l.CounterpartyID, &l.CounterpartyName,
			&l.AccountCode, &l.AccountName, &debit, &credit, &status); err != nil {
			return nil, err
		}
		if l.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, err
		}
		if l.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, err
		}
		l.Status = EntryStatus(status)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *txRepository) FindUnbalancedEntries(ctx context.Context) ([]int64, error) {
	return r.collectIDs(ctx, `SELECT entry_id FROM journal_movements GROUP BY entry_id HAVING SUM(debit) <> SUM(credit) ORDER BY entry_id`)
}

func (r *txRepository) FindBrokenReversals(ctx context.Context) ([]int64, error) {
	return r.collectIDs(ctx, `SELECT e.id FROM journal_entries e
LEFT JOIN journal_entries rev ON rev.id = e.corrected_by
WHERE e.status = 'VOIDED' AND (
    rev.id IS NULL
    OR rev.reverses IS DISTINCT FROM e.id
    OR EXISTS (
        SELECT 1 FROM journal_movements m
        WHERE m.entry_id IN (e.id, rev.id)
        GROUP BY m.account_code
        HAVING SUM(m.debit - m.credit) <> 0
    )
)
ORDER BY e.id`)
}

func (r *txRepository) collectIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := r.tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// whereClause accumulates AND-ed conditions with positional placeholders.
type whereClause struct {
	conds []string
	args  []any
}

func (w *whereClause) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1))
}

func (w whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}
