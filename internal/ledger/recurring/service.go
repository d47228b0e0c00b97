// Package recurring stores recurring entry templates and materialises them into
// payables and receivables, at most once per entry per calendar month.
package recurring

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

// CreateInput describes a new recurring entry.
type CreateInput struct {
	TenantID          int64
	Kind              ledger.BillKind
	Description       string
	Amount            decimal.Decimal
	CategoryID        *int64
	PartyID           *int64
	AccountID         *int64
	Frequency         ledger.Frequency
	DayOfMonth        int
	StartDate         time.Time
	EndDate           *time.Time
	TotalInstallments *int
}

// UpdateInput carries the fields to change; nil fields are left untouched.
type UpdateInput struct {
	Description       *string
	Amount            *decimal.Decimal
	CategoryID        *int64
	PartyID           *int64
	AccountID         *int64
	Frequency         *ledger.Frequency
	DayOfMonth        *int
	EndDate           *time.Time
	TotalInstallments *int
	Active            *bool
}

// Service manages recurring entries and generates their bills.
type Service struct {
	repo     ledger.Repository
	notifier ledger.ChangeNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo ledger.Repository, notifier ledger.ChangeNotifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, logger: logger, now: time.Now}
}

func validate(entry ledger.RecurringEntry) error {
	if !entry.Kind.Valid() {
		return ledger.Invalidf("unknown direction %q", entry.Kind)
	}
	if entry.Description == "" {
		return ledger.Invalidf("description required")
	}
	if !entry.Amount.IsPositive() {
		return ledger.Invalidf("amount must be positive")
	}
	if entry.Frequency.Months() == 0 {
		return ledger.Invalidf("unknown frequency %q", entry.Frequency)
	}
	if entry.DayOfMonth < 1 || entry.DayOfMonth > 31 {
		return ledger.Invalidf("day of month must be between 1 and 31")
	}
	if entry.StartDate.IsZero() {
		return ledger.Invalidf("start date required")
	}
	if entry.EndDate != nil && ledger.DateOnly(*entry.EndDate).Before(ledger.DateOnly(entry.StartDate)) {
		return ledger.Invalidf("end date before start date")
	}
	if entry.TotalInstallments != nil && *entry.TotalInstallments <= 0 {
		return ledger.Invalidf("total installments must be positive")
	}
	return nil
}

// Create registers an active recurring entry. Frequency defaults to mensal.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.RecurringEntry, error) {
	if input.TenantID <= 0 {
		return ledger.RecurringEntry{}, ledger.Invalidf("tenant required")
	}
	frequency := input.Frequency
	if frequency == "" {
		frequency = ledger.FrequencyMonthly
	}
	entry := ledger.RecurringEntry{
		TenantID:          input.TenantID,
		Kind:              input.Kind,
		Description:       strings.TrimSpace(input.Description),
		Amount:            ledger.Money(input.Amount),
		CategoryID:        input.CategoryID,
		PartyID:           input.PartyID,
		AccountID:         input.AccountID,
		Frequency:         frequency,
		DayOfMonth:        input.DayOfMonth,
		StartDate:         ledger.DateOnly(input.StartDate),
		EndDate:           input.EndDate,
		TotalInstallments: input.TotalInstallments,
		Active:            true,
	}
	if err := validate(entry); err != nil {
		return ledger.RecurringEntry{}, err
	}
	var created ledger.RecurringEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		if entry.AccountID != nil {
			if _, err := tx.LockAccount(ctx, entry.TenantID, *entry.AccountID); err != nil {
				return err
			}
		}
		var err error
		created, err = tx.InsertRecurringEntry(ctx, entry)
		return err
	})
	if err != nil {
		return ledger.RecurringEntry{}, err
	}
	s.logger.Info("ledger recurring entry created", slog.Int64("tenant_id", created.TenantID), slog.Int64("entry_id", created.ID))
	return created, nil
}

// Get loads a live entry.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (ledger.RecurringEntry, error) {
	return s.repo.GetRecurringEntry(ctx, tenantID, id)
}

// List returns live entries.
func (s *Service) List(ctx context.Context, tenantID int64, filter ledger.RecurringFilter) ([]ledger.RecurringEntry, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, ledger.Invalidf("unknown direction %q", filter.Kind)
	}
	return s.repo.ListRecurringEntries(ctx, tenantID, filter)
}

// Update edits an entry. Bills already generated are not touched.
func (s *Service) Update(ctx context.Context, tenantID, id int64, input UpdateInput) (ledger.RecurringEntry, error) {
	return s.mutate(ctx, tenantID, id, func(entry *ledger.RecurringEntry) {
		if input.Description != nil {
			entry.Description = strings.TrimSpace(*input.Description)
		}
		if input.Amount != nil {
			entry.Amount = ledger.Money(*input.Amount)
		}
		if input.CategoryID != nil {
			entry.CategoryID = input.CategoryID
		}
		if input.PartyID != nil {
			entry.PartyID = input.PartyID
		}
		if input.AccountID != nil {
			entry.AccountID = input.AccountID
		}
		if input.Frequency != nil {
			entry.Frequency = *input.Frequency
		}
		if input.DayOfMonth != nil {
			entry.DayOfMonth = *input.DayOfMonth
		}
		if input.EndDate != nil {
			entry.EndDate = input.EndDate
		}
		if input.TotalInstallments != nil {
			entry.TotalInstallments = input.TotalInstallments
		}
		if input.Active != nil {
			entry.Active = *input.Active
		}
	})
}

// Deactivate stops an entry from generating further bills.
func (s *Service) Deactivate(ctx context.Context, tenantID, id int64) (ledger.RecurringEntry, error) {
	return s.mutate(ctx, tenantID, id, func(entry *ledger.RecurringEntry) {
		entry.Active = false
	})
}

// Delete soft-deletes an entry. Its generated bills keep their link for audit.
func (s *Service) Delete(ctx context.Context, tenantID, id int64) error {
	at := s.now().UTC()
	_, err := s.mutate(ctx, tenantID, id, func(entry *ledger.RecurringEntry) {
		entry.Active = false
		entry.DeletedAt = &at
	})
	return err
}

func (s *Service) mutate(ctx context.Context, tenantID, id int64, apply func(*ledger.RecurringEntry)) (ledger.RecurringEntry, error) {
	var updated ledger.RecurringEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		entry, err := tx.LockRecurringEntry(ctx, tenantID, id)
		if err != nil {
			return err
		}
		prevAccount := entry.AccountID
		apply(&entry)
		if err := validate(entry); err != nil {
			return err
		}
		if entry.AccountID != nil && (prevAccount == nil || *prevAccount != *entry.AccountID) {
			if _, err := tx.LockAccount(ctx, tenantID, *entry.AccountID); err != nil {
				return err
			}
		}
		updated, err = tx.UpdateRecurringEntry(ctx, entry)
		return err
	})
	if err != nil {
		return ledger.RecurringEntry{}, err
	}
	return updated, nil
}
