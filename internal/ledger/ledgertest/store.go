// Package ledgertest provides an in-memory ledger.Repository for service tests.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

// Store is an in-memory ledger.Repository. Transactions are serialised and
// rolled back on error; reads outside a transaction may observe uncommitted state.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   *state

	failures map[string]error
	// Now stamps created_at columns. Defaults to time.Now.
	Now func() time.Time
}

type state struct {
	seq       map[string]int64
	accounts  map[int64]ledger.Account
	movements map[int64]ledger.Movement
	bills     map[ledger.BillKind]map[int64]ledger.Bill
	recurring map[int64]ledger.RecurringEntry
	alerts    map[int64]ledger.Alert
}

var _ ledger.Repository = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), failures: make(map[string]error), Now: time.Now}
}

func newState() *state {
	return &state{
		seq:       make(map[string]int64),
		accounts:  make(map[int64]ledger.Account),
		movements: make(map[int64]ledger.Movement),
		bills: map[ledger.BillKind]map[int64]ledger.Bill{
			ledger.BillPayable:    {},
			ledger.BillReceivable: {},
		},
		recurring: make(map[int64]ledger.RecurringEntry),
		alerts:    make(map[int64]ledger.Alert),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.seq {
		out.seq[k] = v
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.movements {
		out.movements[k] = v
	}
	for kind, bills := range s.bills {
		for k, v := range bills {
			out.bills[kind][k] = v
		}
	}
	for k, v := range s.recurring {
		out.recurring[k] = v
	}
	for k, v := range s.alerts {
		out.alerts[k] = v
	}
	return out
}

func (s *state) next(name string) int64 {
	s.seq[name]++
	return s.seq[name]
}

// Fail makes every later call of the named TxRepository method return err. A nil err clears it.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) failure(op string) error {
	return s.failures[op]
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// WithTx runs fn holding the store-wide transaction lock and restores the prior state if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return ledger.Internal("begin tx", err)
	}

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(ctx, &tx{store: s}); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// AddAccount seeds an account directly, bypassing services.
func (s *Store) AddAccount(acc ledger.Account) ledger.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc.ID = s.st.next("accounts")
	if acc.CurrentBalance.IsZero() {
		acc.CurrentBalance = acc.OpeningBalance
	}
	acc.CreatedAt = s.now()
	acc.UpdatedAt = acc.CreatedAt
	s.st.accounts[acc.ID] = acc
	return acc
}

// AddBill seeds a payable or receivable directly.
func (s *Store) AddBill(bill ledger.Bill) ledger.Bill {
	s.mu.Lock()
	defer s.mu.Unlock()
	bill.ID = s.st.next(string(bill.Kind))
	bill.DueDate = ledger.DateOnly(bill.DueDate)
	if bill.Status == "" {
		bill.Status = ledger.StatusPending
	}
	bill.CreatedAt = s.now()
	bill.UpdatedAt = bill.CreatedAt
	s.st.bills[bill.Kind][bill.ID] = bill
	return bill
}

// AddRecurringEntry seeds a recurring entry directly.
func (s *Store) AddRecurringEntry(entry ledger.RecurringEntry) ledger.RecurringEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.st.next("recurring")
	entry.StartDate = ledger.DateOnly(entry.StartDate)
	entry.CreatedAt = s.now()
	entry.UpdatedAt = entry.CreatedAt
	s.st.recurring[entry.ID] = entry
	return entry
}

// Reader.

func visible(deletedAt *time.Time, scope ledger.Scope) bool {
	return scope == ledger.IncludeDeleted || deletedAt == nil
}

func (s *Store) GetAccount(_ context.Context, tenantID, id int64, scope ledger.Scope) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.st.accounts[id]
	if !ok || acc.TenantID != tenantID || !visible(acc.DeletedAt, scope) {
		return ledger.Account{}, ledger.NotFoundf("account %d", id)
	}
	return acc, nil
}

func (s *Store) ListAccounts(_ context.Context, tenantID int64, filter ledger.AccountFilter) ([]ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Account
	for _, acc := range s.st.accounts {
		if acc.TenantID != tenantID || !visible(acc.DeletedAt, filter.Scope) {
			continue
		}
		if filter.ActiveOnly && !acc.Active {
			continue
		}
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetMovement(_ context.Context, tenantID, id int64, scope ledger.Scope) (ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mv, ok := s.st.movements[id]
	if !ok || mv.TenantID != tenantID || !visible(mv.DeletedAt, scope) {
		return ledger.Movement{}, ledger.NotFoundf("movement %d", id)
	}
	return mv, nil
}

func (s *Store) ListMovements(_ context.Context, tenantID int64, filter ledger.MovementFilter) ([]ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Movement
	for _, mv := range s.st.movements {
		if mv.TenantID != tenantID || !visible(mv.DeletedAt, filter.Scope) {
			continue
		}
		if filter.AccountID != 0 && mv.AccountID != filter.AccountID {
			continue
		}
		if filter.Kind != "" && mv.Kind != filter.Kind {
			continue
		}
		if !filter.From.IsZero() && mv.Date.Before(ledger.DateOnly(filter.From)) {
			continue
		}
		if !filter.To.IsZero() && mv.Date.After(ledger.DateOnly(filter.To)) {
			continue
		}
		out = append(out, mv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) LatestMovement(_ context.Context, tenantID, accountID int64) (ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.latestMovement(tenantID, accountID)
}

func (st *state) latestMovement(tenantID, accountID int64) (ledger.Movement, error) {
	var (
		latest ledger.Movement
		found  bool
	)
	for _, mv := range st.movements {
		if mv.TenantID != tenantID || mv.AccountID != accountID || mv.DeletedAt != nil {
			continue
		}
		if !found || mv.ID > latest.ID {
			latest, found = mv, true
		}
	}
	if !found {
		return ledger.Movement{}, ledger.NotFoundf("latest movement of account %d", accountID)
	}
	return latest, nil
}

func (s *Store) GetBill(_ context.Context, kind ledger.BillKind, tenantID, id int64, scope ledger.Scope) (ledger.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bills, ok := s.st.bills[kind]
	if !ok {
		return ledger.Bill{}, ledger.Invalidf("unknown bill kind %q", kind)
	}
	bill, ok := bills[id]
	if !ok || bill.TenantID != tenantID || !visible(bill.DeletedAt, scope) {
		return ledger.Bill{}, ledger.NotFoundf("bill %d", id)
	}
	return bill, nil
}

func (s *Store) ListBills(_ context.Context, kind ledger.BillKind, tenantID int64, filter ledger.BillFilter) ([]ledger.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Bill
	for _, bill := range s.st.bills[kind] {
		if bill.TenantID != tenantID || !visible(bill.DeletedAt, filter.Scope) {
			continue
		}
		if filter.Status != "" && bill.Status != filter.Status {
			continue
		}
		if filter.OpenOnly && !bill.Status.Open() {
			continue
		}
		if filter.PartyID != 0 && (bill.PartyID == nil || *bill.PartyID != filter.PartyID) {
			continue
		}
		if !filter.DueFrom.IsZero() && bill.DueDate.Before(ledger.DateOnly(filter.DueFrom)) {
			continue
		}
		if !filter.DueTo.IsZero() && bill.DueDate.After(ledger.DateOnly(filter.DueTo)) {
			continue
		}
		out = append(out, bill)
	}
	sortBills(out)
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func sortBills(bills []ledger.Bill) {
	sort.Slice(bills, func(i, j int) bool {
		if !bills[i].DueDate.Equal(bills[j].DueDate) {
			return bills[i].DueDate.Before(bills[j].DueDate)
		}
		return bills[i].ID < bills[j].ID
	})
}

func within(t *time.Time, from, to time.Time) bool {
	if from.IsZero() && to.IsZero() {
		return true
	}
	if t == nil {
		return false
	}
	d := ledger.DateOnly(*t)
	if !from.IsZero() && d.Before(ledger.DateOnly(from)) {
		return false
	}
	if !to.IsZero() && d.After(ledger.DateOnly(to)) {
		return false
	}
	return true
}

func (s *Store) SumBills(_ context.Context, kind ledger.BillKind, tenantID int64, agg ledger.BillAggregate) (ledger.BillTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := ledger.BillTotals{Total: decimal.Zero}
	for _, bill := range s.st.bills[kind] {
		if bill.TenantID != tenantID || bill.DeletedAt != nil {
			continue
		}
		if len(agg.Statuses) > 0 && !containsStatus(agg.Statuses, bill.Status) {
			continue
		}
		due := bill.DueDate
		if !within(&due, agg.DueFrom, agg.DueTo) || !within(bill.PaidDate, agg.PaidFrom, agg.PaidTo) {
			continue
		}
		amount := bill.Amount
		if bill.Status.Terminal() && bill.PaidAmount.Valid {
			amount = bill.PaidAmount.Decimal
		}
		totals.Count++
		totals.Total = totals.Total.Add(amount)
	}
	return totals, nil
}

func containsStatus(statuses []ledger.BillStatus, status ledger.BillStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s *Store) GetRecurringEntry(_ context.Context, tenantID, id int64) (ledger.RecurringEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.st.recurring[id]
	if !ok || entry.TenantID != tenantID || entry.DeletedAt != nil {
		return ledger.RecurringEntry{}, ledger.NotFoundf("recurring entry %d", id)
	}
	return entry, nil
}

func (s *Store) ListRecurringEntries(_ context.Context, tenantID int64, filter ledger.RecurringFilter) ([]ledger.RecurringEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.RecurringEntry
	for _, entry := range s.st.recurring {
		if entry.TenantID != tenantID || entry.DeletedAt != nil {
			continue
		}
		if filter.Kind != "" && entry.Kind != filter.Kind {
			continue
		}
		if filter.ActiveOnly && !entry.Active {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListRecurringTenants(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[int64]struct{}{}
	for _, entry := range s.st.recurring {
		if entry.Active && entry.DeletedAt == nil {
			set[entry.TenantID] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func (s *Store) ListAlerts(_ context.Context, tenantID int64, unreadOnly bool, limit int) ([]ledger.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Alert
	for _, alert := range s.st.alerts {
		if alert.TenantID != tenantID || (unreadOnly && alert.Read) {
			continue
		}
		out = append(out, alert)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountUnreadAlerts(_ context.Context, tenantID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, alert := range s.st.alerts {
		if alert.TenantID == tenantID && !alert.Read {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListOpenBillTenants(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[int64]struct{}{}
	for _, bills := range s.st.bills {
		for _, bill := range bills {
			if bill.DeletedAt == nil && bill.Status.Open() {
				set[bill.TenantID] = struct{}{}
			}
		}
	}
	return sortedKeys(set), nil
}

func (s *Store) ListAccountTenants(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[int64]struct{}{}
	for _, acc := range s.st.accounts {
		if acc.DeletedAt == nil {
			set[acc.TenantID] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func (s *Store) CashFlow(_ context.Context, tenantID int64, from, to ledger.Period) ([]ledger.MonthlyFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPeriod := map[ledger.Period]*ledger.MonthlyFlow{}
	for _, mv := range s.st.movements {
		if mv.TenantID != tenantID || mv.DeletedAt != nil || mv.Kind == ledger.MovementTransfer {
			continue
		}
		p := ledger.PeriodOf(mv.Date)
		if p.Before(from) || to.Before(p) {
			continue
		}
		flow, ok := byPeriod[p]
		if !ok {
			flow = &ledger.MonthlyFlow{Period: p, In: decimal.Zero, Out: decimal.Zero}
			byPeriod[p] = flow
		}
		if mv.Direction == ledger.DirectionOut {
			flow.Out = flow.Out.Add(mv.Amount)
		} else {
			flow.In = flow.In.Add(mv.Amount)
		}
	}
	out := make([]ledger.MonthlyFlow, 0, len(byPeriod))
	for _, flow := range byPeriod {
		out = append(out, *flow)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out, nil
}

func sortedKeys(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TransferLegs is a test helper returning both live legs of a transfer.
func (s *Store) TransferLegs(tenantID int64, transferID uuid.UUID) []ledger.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.transferLegs(tenantID, transferID)
}

func (st *state) transferLegs(tenantID int64, transferID uuid.UUID) []ledger.Movement {
	var out []ledger.Movement
	for _, mv := range st.movements {
		if mv.TenantID == tenantID && mv.DeletedAt == nil && mv.TransferID != nil && *mv.TransferID == transferID {
			out = append(out, mv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
