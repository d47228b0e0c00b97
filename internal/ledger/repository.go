package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Scope selects which rows a read sees with respect to soft delete.
type Scope int

const (
	// ActiveOnly hides soft-deleted rows. It is the default for every read.
	ActiveOnly Scope = iota
	// IncludeDeleted returns soft-deleted rows as well, for audit views.
	IncludeDeleted
)

// AccountFilter narrows ListAccounts.
type AccountFilter struct {
	ActiveOnly bool
	Scope      Scope
}

// MovementFilter narrows ListMovements.
type MovementFilter struct {
	AccountID int64
	Kind      MovementKind
	From      time.Time
	To        time.Time
	Scope     Scope
	Limit     int
}

// BillFilter narrows ListBills.
type BillFilter struct {
	Status BillStatus
	// OpenOnly keeps pendente and vencido rows.
	OpenOnly bool
	PartyID  int64
	DueFrom  time.Time
	DueTo    time.Time
	Scope    Scope
	Limit    int
	Offset   int
}

// RecurringFilter narrows ListRecurringEntries.
type RecurringFilter struct {
	Kind       BillKind
	ActiveOnly bool
}

// BillTotals aggregates bill amounts.
type BillTotals struct {
	Count int
	Total decimal.Decimal
}

// BillAggregate selects bills for SumBills. Zero times are open bounds.
type BillAggregate struct {
	Statuses []BillStatus
	DueFrom  time.Time
	DueTo    time.Time
	PaidFrom time.Time
	PaidTo   time.Time
}

// MonthlyFlow is the cash in and out of one month, transfers excluded.
type MonthlyFlow struct {
	Period Period
	In     decimal.Decimal
	Out    decimal.Decimal
}

// Reader exposes the read side of the ledger store.
type Reader interface {
	GetAccount(ctx context.Context, tenantID, id int64, scope Scope) (Account, error)
	ListAccounts(ctx context.Context, tenantID int64, filter AccountFilter) ([]Account, error)

	GetMovement(ctx context.Context, tenantID, id int64, scope Scope) (Movement, error)
	ListMovements(ctx context.Context, tenantID int64, filter MovementFilter) ([]Movement, error)
	LatestMovement(ctx context.Context, tenantID, accountID int64) (Movement, error)

	GetBill(ctx context.Context, kind BillKind, tenantID, id int64, scope Scope) (Bill, error)
	ListBills(ctx context.Context, kind BillKind, tenantID int64, filter BillFilter) ([]Bill, error)
	SumBills(ctx context.Context, kind BillKind, tenantID int64, agg BillAggregate) (BillTotals, error)

	GetRecurringEntry(ctx context.Context, tenantID, id int64) (RecurringEntry, error)
	ListRecurringEntries(ctx context.Context, tenantID int64, filter RecurringFilter) ([]RecurringEntry, error)
	ListRecurringTenants(ctx context.Context) ([]int64, error)

	ListAlerts(ctx context.Context, tenantID int64, unreadOnly bool, limit int) ([]Alert, error)
	CountUnreadAlerts(ctx context.Context, tenantID int64) (int, error)
	ListOpenBillTenants(ctx context.Context) ([]int64, error)
	ListAccountTenants(ctx context.Context) ([]int64, error)

	CashFlow(ctx context.Context, tenantID int64, from, to Period) ([]MonthlyFlow, error)
}

// TxRepository is the write side, usable only inside WithTx.
type TxRepository interface {
	InsertAccount(ctx context.Context, acc Account) (Account, error)
	UpdateAccount(ctx context.Context, acc Account) (Account, error)
	SoftDeleteAccount(ctx context.Context, tenantID, id int64, at time.Time) error
	CountMovements(ctx context.Context, tenantID, accountID int64) (int, error)
	// LockAccount loads a non-deleted account holding an exclusive row lock until commit.
	LockAccount(ctx context.Context, tenantID, id int64) (Account, error)
	SetAccountBalance(ctx context.Context, tenantID, id int64, balance decimal.Decimal) error

	InsertMovement(ctx context.Context, mv Movement) (Movement, error)
	GetMovement(ctx context.Context, tenantID, id int64) (Movement, error)
	LatestMovement(ctx context.Context, tenantID, accountID int64) (Movement, error)
	ListTransferLegs(ctx context.Context, tenantID int64, transferID uuid.UUID) ([]Movement, error)
	SoftDeleteMovement(ctx context.Context, tenantID, id int64, at time.Time) error

	// LockBill loads a non-deleted bill holding an exclusive row lock until commit.
	LockBill(ctx context.Context, kind BillKind, tenantID, id int64) (Bill, error)
	InsertBill(ctx context.Context, bill Bill) (Bill, error)
	UpdateBill(ctx context.Context, bill Bill) (Bill, error)
	SettleBill(ctx context.Context, bill Bill) error
	SoftDeleteBill(ctx context.Context, kind BillKind, tenantID, id int64, at time.Time) error
	MarkOverdue(ctx context.Context, kind BillKind, tenantID int64, asOf time.Time) ([]Bill, error)
	ListDueBetween(ctx context.Context, kind BillKind, tenantID int64, from, to time.Time) ([]Bill, error)
	BillExistsForCompetence(ctx context.Context, kind BillKind, tenantID, entryID int64, competence string) (bool, error)

	InsertRecurringEntry(ctx context.Context, entry RecurringEntry) (RecurringEntry, error)
	UpdateRecurringEntry(ctx context.Context, entry RecurringEntry) (RecurringEntry, error)
	// LockRecurringEntry loads a non-deleted entry holding an exclusive row lock until commit.
	LockRecurringEntry(ctx context.Context, tenantID, id int64) (RecurringEntry, error)
	AdvanceRecurringEntry(ctx context.Context, tenantID, id int64, generated int, active bool) error

	// InsertAlert appends an alert; inserted is false when an identical alert already exists.
	InsertAlert(ctx context.Context, alert Alert) (inserted bool, err error)
	MarkAlertRead(ctx context.Context, tenantID, id int64) error
	MarkAllAlertsRead(ctx context.Context, tenantID int64) (int64, error)
}

// Repository is the full ledger store.
type Repository interface {
	Reader
	// WithTx runs fn in one database transaction; any error rolls everything back.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// ChangeNotifier is told after a committed write changed a tenant's ledger.
type ChangeNotifier interface {
	LedgerChanged(ctx context.Context, tenantID int64)
}

// NotifyChanged calls n when it is set.
func NotifyChanged(ctx context.Context, n ChangeNotifier, tenantID int64) {
	if n != nil {
		n.LedgerChanged(ctx, tenantID)
	}
}
