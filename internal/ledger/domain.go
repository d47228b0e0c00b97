package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementKind enumerates ledger entry kinds.
type MovementKind string

const (
	// MovementIn credits an account.
	MovementIn MovementKind = "entrada"
	// MovementOut debits an account.
	MovementOut MovementKind = "saida"
	// MovementTransfer marks one leg of an inter-account transfer.
	MovementTransfer MovementKind = "transferencia"
)

// Valid reports whether k is a known movement kind.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementIn, MovementOut, MovementTransfer:
		return true
	}
	return false
}

// Direction tells whether a movement adds to or subtracts from the balance.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// DirectionFor returns the direction implied by a plain (non-transfer) kind.
func DirectionFor(kind MovementKind) Direction {
	if kind == MovementOut {
		return DirectionOut
	}
	return DirectionIn
}

// Apply returns the balance after moving amount in direction d.
func (d Direction) Apply(balance, amount decimal.Decimal) decimal.Decimal {
	if d == DirectionOut {
		return balance.Sub(amount)
	}
	return balance.Add(amount)
}

// Money rounds v to cents, the precision of every NUMERIC(15,2) column.
func Money(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// Account is a tenant bank account with its running balance.
type Account struct {
	ID             int64
	TenantID       int64
	Name           string
	BankName       string
	BankCode       string
	Agency         string
	Number         string
	Type           string
	OpeningBalance decimal.Decimal
	CurrentBalance decimal.Decimal
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Deleted reports whether the account was soft-deleted.
func (a Account) Deleted() bool { return a.DeletedAt != nil }

// SourceRef points a movement back at the payable or receivable that caused it.
type SourceRef struct {
	Kind BillKind
	ID   int64
}

// Movement is an immutable balance change on one account.
type Movement struct {
	ID               int64
	TenantID         int64
	AccountID        int64
	Kind             MovementKind
	Direction        Direction
	Amount           decimal.Decimal
	Date             time.Time
	Description      string
	CategoryID       *int64
	CounterAccountID *int64
	TransferID       *uuid.UUID
	Source           *SourceRef
	BalanceBefore    decimal.Decimal
	BalanceAfter     decimal.Decimal
	CreatedAt        time.Time
	DeletedAt        *time.Time
}

// BillKind distinguishes payables from receivables. Recurring entries reuse it as their direction.
type BillKind string

const (
	BillPayable    BillKind = "pagar"
	BillReceivable BillKind = "receber"
)

// Valid reports whether k is a known bill kind.
func (k BillKind) Valid() bool {
	return k == BillPayable || k == BillReceivable
}

// SettledStatus is the terminal status for bills of this kind.
func (k BillKind) SettledStatus() BillStatus {
	if k == BillReceivable {
		return StatusReceived
	}
	return StatusPaid
}

// MovementKind is the cash movement produced when a bill of this kind settles.
func (k BillKind) MovementKind() MovementKind {
	if k == BillReceivable {
		return MovementIn
	}
	return MovementOut
}

// SettledAlert is the alert appended when a bill of this kind settles.
func (k BillKind) SettledAlert() AlertKind {
	if k == BillReceivable {
		return AlertReceived
	}
	return AlertPaid
}

// BillStatus enumerates payable/receivable statuses.
type BillStatus string

const (
	StatusPending  BillStatus = "pendente"
	StatusOverdue  BillStatus = "vencido"
	StatusPaid     BillStatus = "pago"
	StatusReceived BillStatus = "recebido"
)

// Terminal reports whether no further edits are allowed.
func (s BillStatus) Terminal() bool {
	return s == StatusPaid || s == StatusReceived
}

// Open reports whether the bill still awaits settlement.
func (s BillStatus) Open() bool {
	return s == StatusPending || s == StatusOverdue
}

// Bill is a payable or receivable.
type Bill struct {
	ID               int64
	TenantID         int64
	Kind             BillKind
	PartyID          *int64
	CategoryID       *int64
	Description      string
	Amount           decimal.Decimal
	DueDate          time.Time
	Status           BillStatus
	PaidAmount       decimal.NullDecimal
	PaidDate         *time.Time
	PaymentMethod    string
	AccountID        *int64
	RecurringEntryID *int64
	Installment      int
	InstallmentTotal int
	Competence       string
	Notes            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// StatusAsOf returns the time-derived status of an open bill.
func (b Bill) StatusAsOf(asOf time.Time) BillStatus {
	if b.Status.Terminal() {
		return b.Status
	}
	if DateOnly(b.DueDate).Before(DateOnly(asOf)) {
		return StatusOverdue
	}
	return StatusPending
}

// Frequency controls how often a recurring entry materialises.
type Frequency string

const (
	FrequencyMonthly    Frequency = "mensal"
	FrequencyQuarterly  Frequency = "trimestral"
	FrequencySemiannual Frequency = "semestral"
	FrequencyYearly     Frequency = "anual"
)

// Months returns the period length in months, or zero for unknown values.
func (f Frequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencySemiannual:
		return 6
	case FrequencyYearly:
		return 12
	}
	return 0
}

// RecurringEntry is a template that periodically materialises a bill.
type RecurringEntry struct {
	ID                    int64
	TenantID              int64
	Kind                  BillKind
	Description           string
	Amount                decimal.Decimal
	CategoryID            *int64
	PartyID               *int64
	AccountID             *int64
	Frequency             Frequency
	DayOfMonth            int
	StartDate             time.Time
	EndDate               *time.Time
	TotalInstallments     *int
	InstallmentsGenerated int
	Active                bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
	DeletedAt             *time.Time
}

// AlertKind enumerates alert categories.
type AlertKind string

const (
	AlertOverdue  AlertKind = "vencido"
	AlertDueSoon  AlertKind = "vencimento_proximo"
	AlertPaid     AlertKind = "pagamento_realizado"
	AlertReceived AlertKind = "recebimento_realizado"
)

// Alert is an append-only notification; only Read may change.
type Alert struct {
	ID        int64
	TenantID  int64
	Kind      AlertKind
	RefKind   BillKind
	RefID     int64
	Message   string
	Date      time.Time
	Read      bool
	CreatedAt time.Time
}
