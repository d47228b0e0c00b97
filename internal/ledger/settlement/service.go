// Package settlement manages payables and receivables and settles them,
// producing the matching cash movement and alert in the same transaction.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/movements"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates bill operations.
type Service struct {
	repo     ledger.Repository
	recorder *movements.Recorder
	audit    AuditPort
	metrics  *ledger.Metrics
	notifier ledger.ChangeNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// Config groups optional collaborators.
type Config struct {
	Audit    AuditPort
	Metrics  *ledger.Metrics
	Notifier ledger.ChangeNotifier
	Logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo ledger.Repository, recorder *movements.Recorder, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		recorder: recorder,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		notifier: cfg.Notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) today() time.Time {
	return ledger.DateOnly(s.now())
}

// CreateInput describes a new payable or receivable.
type CreateInput struct {
	TenantID    int64
	Kind        ledger.BillKind
	PartyID     *int64
	CategoryID  *int64
	Description string
	Amount      decimal.Decimal
	DueDate     time.Time
	AccountID   *int64
	Notes       string
}

// UpdateInput carries the fields to change; nil fields are left untouched.
type UpdateInput struct {
	PartyID     *int64
	CategoryID  *int64
	Description *string
	Amount      *decimal.Decimal
	DueDate     *time.Time
	AccountID   *int64
	Notes       *string
}

// Create registers an open bill. A due date already past starts it as overdue.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Bill, error) {
	if input.TenantID <= 0 {
		return ledger.Bill{}, ledger.Invalidf("tenant required")
	}
	if !input.Kind.Valid() {
		return ledger.Bill{}, ledger.Invalidf("unknown bill kind %q", input.Kind)
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return ledger.Bill{}, ledger.Invalidf("description required")
	}
	amount := ledger.Money(input.Amount)
	if !amount.IsPositive() {
		return ledger.Bill{}, ledger.Invalidf("amount must be positive")
	}
	if input.DueDate.IsZero() {
		return ledger.Bill{}, ledger.Invalidf("due date required")
	}
	bill := ledger.Bill{
		TenantID:    input.TenantID,
		Kind:        input.Kind,
		PartyID:     input.PartyID,
		CategoryID:  input.CategoryID,
		Description: description,
		Amount:      amount,
		DueDate:     ledger.DateOnly(input.DueDate),
		AccountID:   input.AccountID,
		Notes:       strings.TrimSpace(input.Notes),
	}
	bill.Status = bill.StatusAsOf(s.today())

	var created ledger.Bill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		if bill.AccountID != nil {
			if _, err := tx.LockAccount(ctx, bill.TenantID, *bill.AccountID); err != nil {
				return err
			}
		}
		var err error
		created, err = tx.InsertBill(ctx, bill)
		return err
	})
	if err != nil {
		return ledger.Bill{}, err
	}
	ledger.NotifyChanged(ctx, s.notifier, created.TenantID)
	return created, nil
}

// Get loads a live bill with its status derived for today.
func (s *Service) Get(ctx context.Context, kind ledger.BillKind, tenantID, id int64) (ledger.Bill, error) {
	if !kind.Valid() {
		return ledger.Bill{}, ledger.Invalidf("unknown bill kind %q", kind)
	}
	bill, err := s.repo.GetBill(ctx, kind, tenantID, id, ledger.ActiveOnly)
	if err != nil {
		return ledger.Bill{}, err
	}
	bill.Status = bill.StatusAsOf(s.today())
	return bill, nil
}

// List returns live bills ordered by due date with statuses derived for today.
func (s *Service) List(ctx context.Context, kind ledger.BillKind, tenantID int64, filter ledger.BillFilter) ([]ledger.Bill, error) {
	if !kind.Valid() {
		return nil, ledger.Invalidf("unknown bill kind %q", kind)
	}
	today := s.today()
	// Stored statuses lag behind the calendar, so status filters become due-date ranges.
	switch filter.Status {
	case ledger.StatusOverdue:
		filter.Status, filter.OpenOnly = "", true
		if cutoff := today.AddDate(0, 0, -1); filter.DueTo.IsZero() || filter.DueTo.After(cutoff) {
			filter.DueTo = cutoff
		}
	case ledger.StatusPending:
		filter.Status, filter.OpenOnly = "", true
		if filter.DueFrom.Before(today) {
			filter.DueFrom = today
		}
	}
	bills, err := s.repo.ListBills(ctx, kind, tenantID, filter)
	if err != nil {
		return nil, err
	}
	for i := range bills {
		bills[i].Status = bills[i].StatusAsOf(today)
	}
	return bills, nil
}

// Update edits an open bill. Settled bills fail with ErrAlreadySettled.
func (s *Service) Update(ctx context.Context, kind ledger.BillKind, tenantID, id int64, input UpdateInput) (ledger.Bill, error) {
	if input.Description != nil && strings.TrimSpace(*input.Description) == "" {
		return ledger.Bill{}, ledger.Invalidf("description required")
	}
	if input.Amount != nil && !ledger.Money(*input.Amount).IsPositive() {
		return ledger.Bill{}, ledger.Invalidf("amount must be positive")
	}
	if input.DueDate != nil && input.DueDate.IsZero() {
		return ledger.Bill{}, ledger.Invalidf("due date required")
	}
	var updated ledger.Bill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		bill, err := tx.LockBill(ctx, kind, tenantID, id)
		if err != nil {
			return err
		}
		if bill.Status.Terminal() {
			return fmt.Errorf("%w: %s %d is %s", ledger.ErrAlreadySettled, kind, id, bill.Status)
		}
		if input.PartyID != nil {
			bill.PartyID = input.PartyID
		}
		if input.CategoryID != nil {
			bill.CategoryID = input.CategoryID
		}
		if input.Description != nil {
			bill.Description = strings.TrimSpace(*input.Description)
		}
		if input.Amount != nil {
			bill.Amount = ledger.Money(*input.Amount)
		}
		if input.DueDate != nil {
			bill.DueDate = ledger.DateOnly(*input.DueDate)
		}
		if input.AccountID != nil {
			if _, err := tx.LockAccount(ctx, tenantID, *input.AccountID); err != nil {
				return err
			}
			bill.AccountID = input.AccountID
		}
		if input.Notes != nil {
			bill.Notes = strings.TrimSpace(*input.Notes)
		}
		bill.Status = bill.StatusAsOf(s.today())
		updated, err = tx.UpdateBill(ctx, bill)
		return err
	})
	if err != nil {
		return ledger.Bill{}, err
	}
	ledger.NotifyChanged(ctx, s.notifier, tenantID)
	return updated, nil
}

// Delete soft-deletes an open bill. Settled bills fail with ErrAlreadySettled.
func (s *Service) Delete(ctx context.Context, kind ledger.BillKind, tenantID, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		bill, err := tx.LockBill(ctx, kind, tenantID, id)
		if err != nil {
			return err
		}
		if bill.Status.Terminal() {
			return fmt.Errorf("%w: %s %d is %s", ledger.ErrAlreadySettled, kind, id, bill.Status)
		}
		return tx.SoftDeleteBill(ctx, kind, tenantID, id, s.now().UTC())
	})
	if err != nil {
		return err
	}
	ledger.NotifyChanged(ctx, s.notifier, tenantID)
	return nil
}

// RefreshOverdue flips pending bills due before asOf to overdue. Repeating it changes nothing.
func (s *Service) RefreshOverdue(ctx context.Context, tenantID int64, asOf time.Time) (int, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	flipped := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		flipped = 0
		for _, kind := range []ledger.BillKind{ledger.BillPayable, ledger.BillReceivable} {
			bills, err := tx.MarkOverdue(ctx, kind, tenantID, asOf)
			if err != nil {
				return err
			}
			flipped += len(bills)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if flipped > 0 {
		ledger.NotifyChanged(ctx, s.notifier, tenantID)
	}
	return flipped, nil
}

func billLabel(kind ledger.BillKind) string {
	if kind == ledger.BillReceivable {
		return "Conta a receber"
	}
	return "Conta a pagar"
}

func entityID(id int64) string {
	return strconv.FormatInt(id, 10)
}
