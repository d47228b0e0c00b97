package ledgertest

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

type tx struct {
	store *Store
}

var _ ledger.TxRepository = (*tx)(nil)

// begin locks the data and reports an injected failure for op.
func (t *tx) begin(op string) (*state, func(), error) {
	t.store.mu.Lock()
	if err := t.store.failure(op); err != nil {
		t.store.mu.Unlock()
		return nil, func() {}, err
	}
	return t.store.st, t.store.mu.Unlock, nil
}

func (t *tx) InsertAccount(_ context.Context, acc ledger.Account) (ledger.Account, error) {
	st, done, err := t.begin("InsertAccount")
	defer done()
	if err != nil {
		return ledger.Account{}, err
	}
	acc.ID = st.next("accounts")
	acc.CurrentBalance = acc.OpeningBalance
	acc.CreatedAt = t.store.now()
	acc.UpdatedAt = acc.CreatedAt
	acc.DeletedAt = nil
	st.accounts[acc.ID] = acc
	return acc, nil
}

func (t *tx) UpdateAccount(_ context.Context, acc ledger.Account) (ledger.Account, error) {
	st, done, err := t.begin("UpdateAccount")
	defer done()
	if err != nil {
		return ledger.Account{}, err
	}
	cur, ok := st.accounts[acc.ID]
	if !ok || cur.TenantID != acc.TenantID || cur.DeletedAt != nil {
		return ledger.Account{}, ledger.NotFoundf("account %d", acc.ID)
	}
	cur.Name = acc.Name
	cur.BankName = acc.BankName
	cur.BankCode = acc.BankCode
	cur.Agency = acc.Agency
	cur.Number = acc.Number
	cur.Type = acc.Type
	cur.Active = acc.Active
	cur.UpdatedAt = t.store.now()
	st.accounts[acc.ID] = cur
	return cur, nil
}

func (t *tx) SoftDeleteAccount(_ context.Context, tenantID, id int64, at time.Time) error {
	st, done, err := t.begin("SoftDeleteAccount")
	defer done()
	if err != nil {
		return err
	}
	acc, ok := st.accounts[id]
	if !ok || acc.TenantID != tenantID || acc.DeletedAt != nil {
		return ledger.NotFoundf("account %d", id)
	}
	acc.DeletedAt = &at
	acc.Active = false
	st.accounts[id] = acc
	return nil
}

func (t *tx) CountMovements(_ context.Context, tenantID, accountID int64) (int, error) {
	st, done, err := t.begin("CountMovements")
	defer done()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, mv := range st.movements {
		if mv.TenantID != tenantID || mv.DeletedAt != nil {
			continue
		}
		if mv.AccountID == accountID || (mv.CounterAccountID != nil && *mv.CounterAccountID == accountID) {
			count++
		}
	}
	return count, nil
}

func (t *tx) LockAccount(_ context.Context, tenantID, id int64) (ledger.Account, error) {
	st, done, err := t.begin("LockAccount")
	defer done()
	if err != nil {
		return ledger.Account{}, err
	}
	acc, ok := st.accounts[id]
	if !ok || acc.TenantID != tenantID || acc.DeletedAt != nil {
		return ledger.Account{}, ledger.NotFoundf("account %d", id)
	}
	return acc, nil
}

func (t *tx) SetAccountBalance(_ context.Context, tenantID, id int64, balance decimal.Decimal) error {
	st, done, err := t.begin("SetAccountBalance")
	defer done()
	if err != nil {
		return err
	}
	acc, ok := st.accounts[id]
	if !ok || acc.TenantID != tenantID || acc.DeletedAt != nil {
		return ledger.NotFoundf("account %d", id)
	}
	acc.CurrentBalance = balance
	acc.UpdatedAt = t.store.now()
	st.accounts[id] = acc
	return nil
}

func (t *tx) InsertMovement(_ context.Context, mv ledger.Movement) (ledger.Movement, error) {
	st, done, err := t.begin("InsertMovement")
	defer done()
	if err != nil {
		return ledger.Movement{}, err
	}
	if !mv.Amount.IsPositive() {
		return ledger.Movement{}, ledger.Internal("insert movement", errCheck("amount must be positive"))
	}
	if !mv.Direction.Apply(mv.BalanceBefore, mv.Amount).Equal(mv.BalanceAfter) {
		return ledger.Movement{}, ledger.Internal("insert movement", errCheck("movements_snapshot_chk"))
	}
	mv.ID = st.next("movements")
	mv.Date = ledger.DateOnly(mv.Date)
	mv.CreatedAt = t.store.now()
	mv.DeletedAt = nil
	st.movements[mv.ID] = mv
	return mv, nil
}

func (t *tx) GetMovement(_ context.Context, tenantID, id int64) (ledger.Movement, error) {
	st, done, err := t.begin("GetMovement")
	defer done()
	if err != nil {
		return ledger.Movement{}, err
	}
	mv, ok := st.movements[id]
	if !ok || mv.TenantID != tenantID || mv.DeletedAt != nil {
		return ledger.Movement{}, ledger.NotFoundf("movement %d", id)
	}
	return mv, nil
}

func (t *tx) LatestMovement(_ context.Context, tenantID, accountID int64) (ledger.Movement, error) {
	st, done, err := t.begin("LatestMovement")
	defer done()
	if err != nil {
		return ledger.Movement{}, err
	}
	return st.latestMovement(tenantID, accountID)
}

func (t *tx) ListTransferLegs(_ context.Context, tenantID int64, transferID uuid.UUID) ([]ledger.Movement, error) {
	st, done, err := t.begin("ListTransferLegs")
	defer done()
	if err != nil {
		return nil, err
	}
	return st.transferLegs(tenantID, transferID), nil
}

func (t *tx) SoftDeleteMovement(_ context.Context, tenantID, id int64, at time.Time) error {
	st, done, err := t.begin("SoftDeleteMovement")
	defer done()
	if err != nil {
		return err
	}
	mv, ok := st.movements[id]
	if !ok || mv.TenantID != tenantID || mv.DeletedAt != nil {
		return ledger.NotFoundf("movement %d", id)
	}
	mv.DeletedAt = &at
	st.movements[id] = mv
	return nil
}

func (t *tx) lookupBill(st *state, kind ledger.BillKind, tenantID, id int64) (ledger.Bill, error) {
	bills, ok := st.bills[kind]
	if !ok {
		return ledger.Bill{}, ledger.Invalidf("unknown bill kind %q", kind)
	}
	bill, ok := bills[id]
	if !ok || bill.TenantID != tenantID || bill.DeletedAt != nil {
		return ledger.Bill{}, ledger.NotFoundf("bill %d", id)
	}
	return bill, nil
}

func (t *tx) LockBill(_ context.Context, kind ledger.BillKind, tenantID, id int64) (ledger.Bill, error) {
	st, done, err := t.begin("LockBill")
	defer done()
	if err != nil {
		return ledger.Bill{}, err
	}
	return t.lookupBill(st, kind, tenantID, id)
}

func (t *tx) InsertBill(_ context.Context, bill ledger.Bill) (ledger.Bill, error) {
	st, done, err := t.begin("InsertBill")
	defer done()
	if err != nil {
		return ledger.Bill{}, err
	}
	bills, ok := st.bills[bill.Kind]
	if !ok {
		return ledger.Bill{}, ledger.Invalidf("unknown bill kind %q", bill.Kind)
	}
	if bill.RecurringEntryID != nil && bill.Competence != "" {
		for _, existing := range bills {
			if existing.RecurringEntryID != nil && *existing.RecurringEntryID == *bill.RecurringEntryID &&
				existing.Competence == bill.Competence {
				return ledger.Bill{}, ledger.Conflictf("insert bill: duplicate recurring competence")
			}
		}
	}
	bill.ID = st.next(string(bill.Kind))
	bill.DueDate = ledger.DateOnly(bill.DueDate)
	bill.CreatedAt = t.store.now()
	bill.UpdatedAt = bill.CreatedAt
	bill.DeletedAt = nil
	bills[bill.ID] = bill
	return bill, nil
}

func (t *tx) UpdateBill(_ context.Context, bill ledger.Bill) (ledger.Bill, error) {
	st, done, err := t.begin("UpdateBill")
	defer done()
	if err != nil {
		return ledger.Bill{}, err
	}
	cur, err := t.lookupBill(st, bill.Kind, bill.TenantID, bill.ID)
	if err != nil {
		return ledger.Bill{}, err
	}
	cur.PartyID = bill.PartyID
	cur.CategoryID = bill.CategoryID
	cur.Description = bill.Description
	cur.Amount = bill.Amount
	cur.DueDate = ledger.DateOnly(bill.DueDate)
	cur.Status = bill.Status
	cur.AccountID = bill.AccountID
	cur.Notes = bill.Notes
	cur.UpdatedAt = t.store.now()
	st.bills[bill.Kind][bill.ID] = cur
	return cur, nil
}

func (t *tx) SettleBill(_ context.Context, bill ledger.Bill) error {
	st, done, err := t.begin("SettleBill")
	defer done()
	if err != nil {
		return err
	}
	cur, err := t.lookupBill(st, bill.Kind, bill.TenantID, bill.ID)
	if err != nil {
		return err
	}
	cur.Status = bill.Status
	cur.PaidAmount = bill.PaidAmount
	if bill.PaidDate != nil {
		d := ledger.DateOnly(*bill.PaidDate)
		cur.PaidDate = &d
	}
	cur.PaymentMethod = bill.PaymentMethod
	cur.AccountID = bill.AccountID
	cur.UpdatedAt = t.store.now()
	st.bills[bill.Kind][bill.ID] = cur
	return nil
}

func (t *tx) SoftDeleteBill(_ context.Context, kind ledger.BillKind, tenantID, id int64, at time.Time) error {
	st, done, err := t.begin("SoftDeleteBill")
	defer done()
	if err != nil {
		return err
	}
	cur, err := t.lookupBill(st, kind, tenantID, id)
	if err != nil {
		return err
	}
	cur.DeletedAt = &at
	st.bills[kind][id] = cur
	return nil
}

func (t *tx) MarkOverdue(_ context.Context, kind ledger.BillKind, tenantID int64, asOf time.Time) ([]ledger.Bill, error) {
	st, done, err := t.begin("MarkOverdue")
	defer done()
	if err != nil {
		return nil, err
	}
	cutoff := ledger.DateOnly(asOf)
	var out []ledger.Bill
	for id, bill := range st.bills[kind] {
		if bill.TenantID != tenantID || bill.DeletedAt != nil || bill.Status != ledger.StatusPending {
			continue
		}
		if !bill.DueDate.Before(cutoff) {
			continue
		}
		bill.Status = ledger.StatusOverdue
		bill.UpdatedAt = t.store.now()
		st.bills[kind][id] = bill
		out = append(out, bill)
	}
	sortBills(out)
	return out, nil
}

func (t *tx) ListDueBetween(_ context.Context, kind ledger.BillKind, tenantID int64, from, to time.Time) ([]ledger.Bill, error) {
	st, done, err := t.begin("ListDueBetween")
	defer done()
	if err != nil {
		return nil, err
	}
	var out []ledger.Bill
	for _, bill := range st.bills[kind] {
		if bill.TenantID != tenantID || bill.DeletedAt != nil || bill.Status != ledger.StatusPending {
			continue
		}
		due := bill.DueDate
		if within(&due, from, to) {
			out = append(out, bill)
		}
	}
	sortBills(out)
	return out, nil
}

func (t *tx) BillExistsForCompetence(_ context.Context, kind ledger.BillKind, tenantID, entryID int64, competence string) (bool, error) {
	st, done, err := t.begin("BillExistsForCompetence")
	defer done()
	if err != nil {
		return false, err
	}
	for _, bill := range st.bills[kind] {
		if bill.TenantID == tenantID && bill.RecurringEntryID != nil && *bill.RecurringEntryID == entryID &&
			bill.Competence == competence {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertRecurringEntry(_ context.Context, entry ledger.RecurringEntry) (ledger.RecurringEntry, error) {
	st, done, err := t.begin("InsertRecurringEntry")
	defer done()
	if err != nil {
		return ledger.RecurringEntry{}, err
	}
	entry.ID = st.next("recurring")
	entry.StartDate = ledger.DateOnly(entry.StartDate)
	entry.InstallmentsGenerated = 0
	entry.CreatedAt = t.store.now()
	entry.UpdatedAt = entry.CreatedAt
	entry.DeletedAt = nil
	st.recurring[entry.ID] = entry
	return entry, nil
}

func (t *tx) UpdateRecurringEntry(_ context.Context, entry ledger.RecurringEntry) (ledger.RecurringEntry, error) {
	st, done, err := t.begin("UpdateRecurringEntry")
	defer done()
	if err != nil {
		return ledger.RecurringEntry{}, err
	}
	cur, ok := st.recurring[entry.ID]
	if !ok || cur.TenantID != entry.TenantID || cur.DeletedAt != nil {
		return ledger.RecurringEntry{}, ledger.NotFoundf("recurring entry %d", entry.ID)
	}
	cur.Description = entry.Description
	cur.Amount = entry.Amount
	cur.CategoryID = entry.CategoryID
	cur.PartyID = entry.PartyID
	cur.AccountID = entry.AccountID
	cur.Frequency = entry.Frequency
	cur.DayOfMonth = entry.DayOfMonth
	cur.EndDate = entry.EndDate
	cur.TotalInstallments = entry.TotalInstallments
	cur.Active = entry.Active
	cur.DeletedAt = entry.DeletedAt
	cur.UpdatedAt = t.store.now()
	st.recurring[entry.ID] = cur
	return cur, nil
}

func (t *tx) LockRecurringEntry(_ context.Context, tenantID, id int64) (ledger.RecurringEntry, error) {
	st, done, err := t.begin("LockRecurringEntry")
	defer done()
	if err != nil {
		return ledger.RecurringEntry{}, err
	}
	entry, ok := st.recurring[id]
	if !ok || entry.TenantID != tenantID || entry.DeletedAt != nil {
		return ledger.RecurringEntry{}, ledger.NotFoundf("recurring entry %d", id)
	}
	return entry, nil
}

func (t *tx) AdvanceRecurringEntry(_ context.Context, tenantID, id int64, generated int, active bool) error {
	st, done, err := t.begin("AdvanceRecurringEntry")
	defer done()
	if err != nil {
		return err
	}
	entry, ok := st.recurring[id]
	if !ok || entry.TenantID != tenantID || entry.DeletedAt != nil {
		return ledger.NotFoundf("recurring entry %d", id)
	}
	entry.InstallmentsGenerated = generated
	entry.Active = active
	entry.UpdatedAt = t.store.now()
	st.recurring[id] = entry
	return nil
}

func (t *tx) InsertAlert(_ context.Context, alert ledger.Alert) (bool, error) {
	st, done, err := t.begin("InsertAlert")
	defer done()
	if err != nil {
		return false, err
	}
	for _, existing := range st.alerts {
		if existing.TenantID == alert.TenantID && existing.Kind == alert.Kind &&
			existing.RefKind == alert.RefKind && existing.RefID == alert.RefID {
			return false, nil
		}
	}
	alert.ID = st.next("alerts")
	alert.Date = ledger.DateOnly(alert.Date)
	alert.Read = false
	alert.CreatedAt = t.store.now()
	st.alerts[alert.ID] = alert
	return true, nil
}

func (t *tx) MarkAlertRead(_ context.Context, tenantID, id int64) error {
	st, done, err := t.begin("MarkAlertRead")
	defer done()
	if err != nil {
		return err
	}
	alert, ok := st.alerts[id]
	if !ok || alert.TenantID != tenantID {
		return ledger.NotFoundf("alert %d", id)
	}
	alert.Read = true
	st.alerts[id] = alert
	return nil
}

func (t *tx) MarkAllAlertsRead(_ context.Context, tenantID int64) (int64, error) {
	st, done, err := t.begin("MarkAllAlertsRead")
	defer done()
	if err != nil {
		return 0, err
	}
	ids := make([]int64, 0)
	for id, alert := range st.alerts {
		if alert.TenantID == tenantID && !alert.Read {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		alert := st.alerts[id]
		alert.Read = true
		st.alerts[id] = alert
	}
	return int64(len(ids)), nil
}

type errCheck string

func (e errCheck) Error() string { return "check constraint violated: " + string(e) }
