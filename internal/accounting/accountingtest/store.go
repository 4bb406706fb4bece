// Package accountingtest provides an in-memory ledger store for tests.
package accountingtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// Store is a transactional in-memory implementation of accounting.RepositoryPort.
// Transactions run one at a time on a copy of the state that is published only
// when fn succeeds.
type Store struct {
	mu     sync.Mutex
	state  *state
	reads  int
	writes int

	failMu sync.Mutex
	fail   map[string]error

	partyMu sync.RWMutex
	parties map[int64]string
}

type state struct {
	accounts       map[string]accounting.Account
	periods        map[int]accounting.FiscalPeriod
	entries        map[int64]accounting.JournalEntry
	sourceRefs     map[uuid.UUID]int64
	nextEntryID    int64
	nextMovementID int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		state: &state{
			accounts:   map[string]accounting.Account{},
			periods:    map[int]accounting.FiscalPeriod{},
			entries:    map[int64]accounting.JournalEntry{},
			sourceRefs: map[uuid.UUID]int64{},
		},
		fail:    map[string]error{},
		parties: map[int64]string{},
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:       make(map[string]accounting.Account, len(s.accounts)),
		periods:        make(map[int]accounting.FiscalPeriod, len(s.periods)),
		entries:        make(map[int64]accounting.JournalEntry, len(s.entries)),
		sourceRefs:     make(map[uuid.UUID]int64, len(s.sourceRefs)),
		nextEntryID:    s.nextEntryID,
		nextMovementID: s.nextMovementID,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.periods {
		c.periods[k] = v
	}
	for k, v := range s.entries {
		v.Movements = append([]accounting.Movement(nil), v.Movements...)
		c.entries[k] = v
	}
	for k, v := range s.sourceRefs {
		c.sourceRefs[k] = v
	}
	return c
}

// WithTx implements accounting.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	draft := s.state.clone()
	if err := fn(ctx, &tx{store: s, st: draft}); err != nil {
		return err
	}
	s.state = draft
	return nil
}

// ReadTx implements accounting.RepositoryPort. The snapshot is discarded, so
// writes made through it never become visible.
func (s *Store) ReadTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return fn(ctx, &tx{store: s, st: s.state.clone()})
}

// TxCounts returns how many read-only and read-write transactions ran.
func (s *Store) TxCounts() (reads, writes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.writes
}

// FailOn makes the next call of the named TxRepository method return err.
func (s *Store) FailOn(method string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.fail[method] = err
}

func (s *Store) injected(method string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	err, ok := s.fail[method]
	if ok {
		delete(s.fail, method)
	}
	return err
}

// AddCounterparty registers a counterparty name for resolution and reports.
func (s *Store) AddCounterparty(id int64, name string) {
	s.partyMu.Lock()
	defer s.partyMu.Unlock()
	s.parties[id] = name
}

// ResolveCounterparty implements accounting.CounterpartyResolver.
func (s *Store) ResolveCounterparty(_ context.Context, id int64) (accounting.CounterpartyRef, error) {
	s.partyMu.RLock()
	defer s.partyMu.RUnlock()
	name, ok := s.parties[id]
	if !ok {
		return accounting.CounterpartyRef{}, fmt.Errorf("%w: %d", accounting.ErrCounterpartyNotFound, id)
	}
	return accounting.CounterpartyRef{ID: id, Name: name}, nil
}

func (s *Store) partyName(id int64) string {
	s.partyMu.RLock()
	defer s.partyMu.RUnlock()
	return s.parties[id]
}

// Entries returns a snapshot of every stored entry ordered by id.
func (s *Store) Entries() []accounting.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]accounting.JournalEntry, 0, len(s.state.entries))
	for _, e := range s.state.entries {
		e.Movements = append([]accounting.Movement(nil), e.Movements...)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PutPeriod stores a period as is, bypassing the service rules.
func (s *Store) PutPeriod(p accounting.FiscalPeriod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.periods[p.Year] = p
}

// PutEntry stores a raw entry, for corrupting the ledger in integrity tests.
func (s *Store) PutEntry(e accounting.JournalEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.entries[e.ID] = e
	if e.ID > s.state.nextEntryID {
		s.state.nextEntryID = e.ID
	}
}

type tx struct {
	store *Store
	st    *state
}

func (t *tx) GetAccount(_ context.Context, code string) (accounting.Account, error) {
	if err := t.store.injected("GetAccount"); err != nil {
		return accounting.Account{}, err
	}
	a, ok := t.st.accounts[code]
	if !ok {
		return accounting.Account{}, fmt.Errorf("%w: %s", accounting.ErrAccountNotFound, code)
	}
	return a, nil
}

func (t *tx) InsertAccount(_ context.Context, acc accounting.Account) error {
	if err := t.store.injected("InsertAccount"); err != nil {
		return err
	}
	if _, ok := t.st.accounts[acc.Code]; ok {
		return fmt.Errorf("%w: %s", accounting.ErrAccountExists, acc.Code)
	}
	if !acc.IsRoot() {
		acc.Class = ""
	}
	t.st.accounts[acc.Code] = acc
	return nil
}

func (t *tx) ListAccounts(context.Context) ([]accounting.Account, error) {
	if err := t.store.injected("ListAccounts"); err != nil {
		return nil, err
	}
	out := make([]accounting.Account, 0, len(t.st.accounts))
	for _, a := range t.st.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (t *tx) AccountUsage(_ context.Context, code string) (int, int, error) {
	children, movements := 0, 0
	for _, a := range t.st.accounts {
		if a.ParentCode == code {
			children++
		}
	}
	for _, e := range t.st.entries {
		for _, m := range e.Movements {
			if m.AccountCode == code {
				movements++
			}
		}
	}
	return children, movements, nil
}

func (t *tx) DeleteAccount(_ context.Context, code string) error {
	if _, ok := t.st.accounts[code]; !ok {
		return fmt.Errorf("%w: %s", accounting.ErrAccountNotFound, code)
	}
	delete(t.st.accounts, code)
	return nil
}

func (t *tx) EnsurePeriod(_ context.Context, defaults accounting.FiscalPeriod, _ accounting.LockMode) (accounting.FiscalPeriod, error) {
	if err := t.store.injected("EnsurePeriod"); err != nil {
		return accounting.FiscalPeriod{}, err
	}
	if p, ok := t.st.periods[defaults.Year]; ok {
		return p, nil
	}
	t.st.periods[defaults.Year] = defaults
	return defaults, nil
}

func (t *tx) UpdatePeriod(_ context.Context, p accounting.FiscalPeriod) error {
	if err := t.store.injected("UpdatePeriod"); err != nil {
		return err
	}
	t.st.periods[p.Year] = p
	return nil
}

func (t *tx) FindEntryBySourceRef(_ context.Context, ref uuid.UUID) (accounting.JournalEntry, bool, error) {
	id, ok := t.st.sourceRefs[ref]
	if !ok {
		return accounting.JournalEntry{}, false, nil
	}
	return copyEntry(t.st.entries[id]), true, nil
}

func (t *tx) InsertEntry(_ context.Context, in accounting.NewEntry) (accounting.JournalEntry, error) {
	if err := t.store.injected("InsertEntry"); err != nil {
		return accounting.JournalEntry{}, err
	}
	if in.SourceRef != nil {
		if _, dup := t.st.sourceRefs[*in.SourceRef]; dup {
			return accounting.JournalEntry{}, accounting.ErrDuplicateSubmission
		}
	}
	t.st.nextEntryID++
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	e := accounting.JournalEntry{
		ID:             t.st.nextEntryID,
		Date:           in.Date,
		CounterpartyID: in.CounterpartyID,
		Concept:        in.Concept,
		Notes:          in.Notes,
		FiscalYear:     in.FiscalYear,
		FiscalPeriod:   in.FiscalPeriod,
		Status:         accounting.EntryActive,
		Reverses:       in.Reverses,
		SourceRef:      in.SourceRef,
		CreatedBy:      in.CreatedBy,
		CreatedAt:      createdAt,
	}
	t.st.entries[e.ID] = e
	if in.SourceRef != nil {
		t.st.sourceRefs[*in.SourceRef] = e.ID
	}
	return e, nil
}

func (t *tx) InsertMovements(_ context.Context, entryID int64, movements []accounting.MovementInput) ([]accounting.Movement, error) {
	if err := t.store.injected("InsertMovements"); err != nil {
		return nil, err
	}
	e, ok := t.st.entries[entryID]
	if !ok {
		return nil, accounting.ErrEntryNotFound
	}
	out := make([]accounting.Movement, 0, len(movements))
	for i, m := range movements {
		if _, ok := t.st.accounts[m.AccountCode]; !ok {
			return nil, &accounting.UnknownAccountError{Code: m.AccountCode, Index: i}
		}
		t.st.nextMovementID++
		out = append(out, accounting.Movement{
			ID:          t.st.nextMovementID,
			EntryID:     entryID,
			AccountCode: m.AccountCode,
			Debit:       m.Debit,
			Credit:      m.Credit,
		})
	}
	e.Movements = append(e.Movements, out...)
	t.st.entries[entryID] = e
	return append([]accounting.Movement(nil), out...), nil
}

func (t *tx) GetEntry(_ context.Context, id int64) (accounting.JournalEntry, error) {
	e, ok := t.st.entries[id]
	if !ok {
		return accounting.JournalEntry{}, accounting.ErrEntryNotFound
	}
	return copyEntry(e), nil
}

func (t *tx) GetEntryForUpdate(ctx context.Context, id int64) (accounting.JournalEntry, error) {
	if err := t.store.injected("GetEntryForUpdate"); err != nil {
		return accounting.JournalEntry{}, err
	}
	return t.GetEntry(ctx, id)
}

func (t *tx) ListEntries(_ context.Context, f accounting.EntryFilter) ([]accounting.JournalEntry, int, error) {
	var out []accounting.JournalEntry
	for _, e := range t.st.entries {
		if f.From != nil && e.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && e.Date.After(*f.To) {
			continue
		}
		if f.CounterpartyID > 0 && e.CounterpartyID != f.CounterpartyID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	total := len(out)
	if f.Limit > 0 {
		start := min(f.Offset, total)
		end := min(start+f.Limit, total)
		out = out[start:end]
	}
	return out, total, nil
}

func (t *tx) MarkVoided(_ context.Context, id int64, mark accounting.VoidMark) (bool, error) {
	if err := t.store.injected("MarkVoided"); err != nil {
		return false, err
	}
	e, ok := t.st.entries[id]
	if !ok || e.Status != accounting.EntryActive {
		return false, nil
	}
	at := mark.At
	corrected := mark.CorrectedBy
	e.Status = accounting.EntryVoided
	e.VoidedBy = mark.By
	e.VoidedAt = &at
	e.VoidReason = mark.Reason
	e.CorrectedBy = &corrected
	t.st.entries[id] = e
	return true, nil
}

func inRange(date time.Time, from, to *time.Time) bool {
	if from != nil && date.Before(*from) {
		return false
	}
	if to != nil && date.After(*to) {
		return false
	}
	return true
}

func (t *tx) SumMovements(_ context.Context, q accounting.BalanceQuery) ([]accounting.AccountTotals, error) {
	if err := t.store.injected("SumMovements"); err != nil {
		return nil, err
	}
	sums := map[string]*accounting.AccountTotals{}
	for _, e := range t.st.entries {
		if !inRange(e.Date, q.From, q.To) {
			continue
		}
		if q.Before != nil && !e.Date.Before(*q.Before) {
			continue
		}
		if q.CounterpartyID > 0 && e.CounterpartyID != q.CounterpartyID {
			continue
		}
		for _, m := range e.Movements {
			if q.AccountCode != "" && m.AccountCode != q.AccountCode {
				continue
			}
			total, ok := sums[m.AccountCode]
			if !ok {
				total = &accounting.AccountTotals{AccountCode: m.AccountCode}
				sums[m.AccountCode] = total
			}
			total.Debit = total.Debit.Add(m.Debit)
			total.Credit = total.Credit.Add(m.Credit)
		}
	}
	out := make([]accounting.AccountTotals, 0, len(sums))
	for _, v := range sums {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountCode < out[j].AccountCode })
	return out, nil
}

func (t *tx) ListMovementLines(_ context.Context, q accounting.LineQuery) ([]accounting.MovementLine, error) {
	var out []accounting.MovementLine
	for _, e := range t.st.entries {
		if !inRange(e.Date, q.From, q.To) {
			continue
		}
		if q.CounterpartyID > 0 && e.CounterpartyID != q.CounterpartyID {
			continue
		}
		for _, m := range e.Movements {
			if q.AccountCode != "" && m.AccountCode != q.AccountCode {
				continue
			}
			out = append(out, accounting.MovementLine{
				EntryID:          e.ID,
				MovementID:       m.ID,
				Date:             e.Date,
				Concept:          e.Concept,
				CounterpartyID:   e.CounterpartyID,
				CounterpartyName: t.store.partyName(e.CounterpartyID),
				AccountCode:      m.AccountCode,
				AccountName:      t.st.accounts[m.AccountCode].Name,
				Debit:            m.Debit,
				Credit:           m.Credit,
				Status:           e.Status,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.EntryID != b.EntryID {
			return a.EntryID < b.EntryID
		}
		return a.MovementID < b.MovementID
	})
	return out, nil
}

func (t *tx) FindUnbalancedEntries(context.Context) ([]int64, error) {
	var ids []int64
	for id, e := range t.st.entries {
		debit, credit := e.Totals()
		if !debit.Equal(credit) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *tx) FindBrokenReversals(context.Context) ([]int64, error) {
	var ids []int64
	for id, e := range t.st.entries {
		if e.Status != accounting.EntryVoided {
			continue
		}
		if !reversalNetsOut(e, t.st.entries) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func reversalNetsOut(original accounting.JournalEntry, entries map[int64]accounting.JournalEntry) bool {
	if original.CorrectedBy == nil {
		return false
	}
	rev, ok := entries[*original.CorrectedBy]
	if !ok || rev.Reverses == nil || *rev.Reverses != original.ID {
		return false
	}
	net := map[string]accounting.AccountTotals{}
	for _, m := range append(append([]accounting.Movement(nil), original.Movements...), rev.Movements...) {
		t := net[m.AccountCode]
		t.Debit = t.Debit.Add(m.Debit)
		t.Credit = t.Credit.Add(m.Credit)
		net[m.AccountCode] = t
	}
	for _, t := range net {
		if !t.Debit.Equal(t.Credit) {
			return false
		}
	}
	return true
}

func copyEntry(e accounting.JournalEntry) accounting.JournalEntry {
	e.Movements = append([]accounting.Movement(nil), e.Movements...)
	return e
}
