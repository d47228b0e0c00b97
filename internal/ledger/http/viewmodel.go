package ledgerhttp

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/movements"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/settlement"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/transfers"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func formatOptionalDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDate(*t)
	return &s
}

type accountView struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	BankName       string          `json:"bank_name"`
	BankCode       string          `json:"bank_code"`
	Agency         string          `json:"agency"`
	Number         string          `json:"number"`
	Type           string          `json:"type"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toAccountView(acc ledger.Account) accountView {
	return accountView{
		ID:             acc.ID,
		Name:           acc.Name,
		BankName:       acc.BankName,
		BankCode:       acc.BankCode,
		Agency:         acc.Agency,
		Number:         acc.Number,
		Type:           acc.Type,
		OpeningBalance: acc.OpeningBalance,
		CurrentBalance: acc.CurrentBalance,
		Active:         acc.Active,
		CreatedAt:      acc.CreatedAt,
		UpdatedAt:      acc.UpdatedAt,
	}
}

type sourceView struct {
	Kind ledger.BillKind `json:"kind"`
	ID   int64           `json:"id"`
}

type movementView struct {
	ID               int64               `json:"id"`
	AccountID        int64               `json:"account_id"`
	Kind             ledger.MovementKind `json:"kind"`
	Direction        ledger.Direction    `json:"direction"`
	Amount           decimal.Decimal     `json:"amount"`
	Date             string              `json:"date"`
	Description      string              `json:"description"`
	CategoryID       *int64              `json:"category_id,omitempty"`
	CounterAccountID *int64              `json:"counter_account_id,omitempty"`
	TransferID       *uuid.UUID          `json:"transfer_id,omitempty"`
	Source           *sourceView         `json:"source,omitempty"`
	BalanceBefore    decimal.Decimal     `json:"balance_before"`
	BalanceAfter     decimal.Decimal     `json:"balance_after"`
	CreatedAt        time.Time           `json:"created_at"`
}

func toMovementView(mv ledger.Movement) movementView {
	view := movementView{
		ID:               mv.ID,
		AccountID:        mv.AccountID,
		Kind:             mv.Kind,
		Direction:        mv.Direction,
		Amount:           mv.Amount,
		Date:             formatDate(mv.Date),
		Description:      mv.Description,
		CategoryID:       mv.CategoryID,
		CounterAccountID: mv.CounterAccountID,
		TransferID:       mv.TransferID,
		BalanceBefore:    mv.BalanceBefore,
		BalanceAfter:     mv.BalanceAfter,
		CreatedAt:        mv.CreatedAt,
	}
	if mv.Source != nil {
		view.Source = &sourceView{Kind: mv.Source.Kind, ID: mv.Source.ID}
	}
	return view
}

type statementView struct {
	Account        accountView     `json:"account"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	TotalIn        decimal.Decimal `json:"total_in"`
	TotalOut       decimal.Decimal `json:"total_out"`
	Movements      []movementView  `json:"movements"`
}

func toStatementView(st accounts.Statement) statementView {
	return statementView{
		Account:        toAccountView(st.Account),
		From:           formatDate(st.From),
		To:             formatDate(st.To),
		OpeningBalance: st.OpeningBalance,
		ClosingBalance: st.ClosingBalance,
		TotalIn:        st.TotalIn,
		TotalOut:       st.TotalOut,
		Movements:      mapSlice(st.Movements, toMovementView),
	}
}

type checkView struct {
	AccountID        int64           `json:"account_id"`
	Stored           decimal.Decimal `json:"stored"`
	Expected         decimal.Decimal `json:"expected"`
	LatestMovementID int64           `json:"latest_movement_id,omitempty"`
	Drifted          bool            `json:"drifted"`
}

func toCheckView(c movements.Check) checkView {
	return checkView{
		AccountID:        c.AccountID,
		Stored:           c.Stored,
		Expected:         c.Expected,
		LatestMovementID: c.LatestMovementID,
		Drifted:          c.Drifted(),
	}
}

type transferView struct {
	TransferID uuid.UUID    `json:"transfer_id"`
	Debit      movementView `json:"debit"`
	Credit     movementView `json:"credit"`
}

func toTransferView(res transfers.Result) transferView {
	return transferView{
		TransferID: res.TransferID,
		Debit:      toMovementView(res.Debit),
		Credit:     toMovementView(res.Credit),
	}
}

type billView struct {
	ID               int64             `json:"id"`
	Kind             ledger.BillKind   `json:"kind"`
	PartyID          *int64            `json:"party_id,omitempty"`
	CategoryID       *int64            `json:"category_id,omitempty"`
	Description      string            `json:"description"`
	Amount           decimal.Decimal   `json:"amount"`
	DueDate          string            `json:"due_date"`
	Status           ledger.BillStatus `json:"status"`
	PaidAmount       *decimal.Decimal  `json:"paid_amount,omitempty"`
	PaidDate         *string           `json:"paid_date,omitempty"`
	PaymentMethod    string            `json:"payment_method,omitempty"`
	AccountID        *int64            `json:"account_id,omitempty"`
	RecurringEntryID *int64            `json:"recurring_entry_id,omitempty"`
	Installment      int               `json:"installment,omitempty"`
	InstallmentTotal int               `json:"installment_total,omitempty"`
	Competence       string            `json:"competence,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func toBillView(bill ledger.Bill) billView {
	view := billView{
		ID:               bill.ID,
		Kind:             bill.Kind,
		PartyID:          bill.PartyID,
		CategoryID:       bill.CategoryID,
		Description:      bill.Description,
		Amount:           bill.Amount,
		DueDate:          formatDate(bill.DueDate),
		Status:           bill.Status,
		PaidDate:         formatOptionalDate(bill.PaidDate),
		PaymentMethod:    bill.PaymentMethod,
		AccountID:        bill.AccountID,
		RecurringEntryID: bill.RecurringEntryID,
		Installment:      bill.Installment,
		InstallmentTotal: bill.InstallmentTotal,
		Competence:       bill.Competence,
		Notes:            bill.Notes,
		CreatedAt:        bill.CreatedAt,
		UpdatedAt:        bill.UpdatedAt,
	}
	if bill.PaidAmount.Valid {
		paid := bill.PaidAmount.Decimal
		view.PaidAmount = &paid
	}
	return view
}

type billPage struct {
	Items      []billView        `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

type settleView struct {
	Bill     billView      `json:"bill"`
	Movement *movementView `json:"movement,omitempty"`
}

func toSettleView(res settlement.Result) settleView {
	view := settleView{Bill: toBillView(res.Bill)}
	if res.Movement != nil {
		mv := toMovementView(*res.Movement)
		view.Movement = &mv
	}
	return view
}

type recurringView struct {
	ID                    int64            `json:"id"`
	Kind                  ledger.BillKind  `json:"kind"`
	Description           string           `json:"description"`
	Amount                decimal.Decimal  `json:"amount"`
	CategoryID            *int64           `json:"category_id,omitempty"`
	PartyID               *int64           `json:"party_id,omitempty"`
	AccountID             *int64           `json:"account_id,omitempty"`
	Frequency             ledger.Frequency `json:"frequency"`
	DayOfMonth            int              `json:"day_of_month"`
	StartDate             string           `json:"start_date"`
	EndDate               *string          `json:"end_date,omitempty"`
	TotalInstallments     *int             `json:"total_installments,omitempty"`
	InstallmentsGenerated int              `json:"installments_generated"`
	Active                bool             `json:"active"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

func toRecurringView(entry ledger.RecurringEntry) recurringView {
	return recurringView{
		ID:                    entry.ID,
		Kind:                  entry.Kind,
		Description:           entry.Description,
		Amount:                entry.Amount,
		CategoryID:            entry.CategoryID,
		PartyID:               entry.PartyID,
		AccountID:             entry.AccountID,
		Frequency:             entry.Frequency,
		DayOfMonth:            entry.DayOfMonth,
		StartDate:             formatDate(entry.StartDate),
		EndDate:               formatOptionalDate(entry.EndDate),
		TotalInstallments:     entry.TotalInstallments,
		InstallmentsGenerated: entry.InstallmentsGenerated,
		Active:                entry.Active,
		CreatedAt:             entry.CreatedAt,
		UpdatedAt:             entry.UpdatedAt,
	}
}

type alertView struct {
	ID      int64            `json:"id"`
	Kind    ledger.AlertKind `json:"kind"`
	RefKind ledger.BillKind  `json:"reference_kind"`
	RefID   int64            `json:"reference_id"`
	Message string           `json:"message"`
	Date    string           `json:"date"`
	Read    bool             `json:"read"`
}

func toAlertView(a ledger.Alert) alertView {
	return alertView{
		ID:      a.ID,
		Kind:    a.Kind,
		RefKind: a.RefKind,
		RefID:   a.RefID,
		Message: a.Message,
		Date:    formatDate(a.Date),
		Read:    a.Read,
	}
}

// mapSlice converts a slice, never returning nil so lists encode as [].
func mapSlice[T, V any](in []T, fn func(T) V) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
