package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

// Outcome is what generation did with one entry.
type Outcome string

const (
	OutcomeGenerated Outcome = "generated"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// EntryError reports a failed entry without aborting the batch.
type EntryError struct {
	EntryID int64  `json:"entry_id"`
	Error   string `json:"error"`
}

// Report summarises one generation run for a tenant.
type Report struct {
	TenantID  int64         `json:"tenant_id"`
	AsOf      time.Time     `json:"as_of"`
	Generated int           `json:"generated"`
	Skipped   int           `json:"skipped"`
	Errors    []EntryError  `json:"errors"`
	Bills     []ledger.Bill `json:"-"`
}

func (r *Report) add(entryID int64, outcome Outcome, bill *ledger.Bill, err error) {
	switch outcome {
	case OutcomeGenerated:
		r.Generated++
		if bill != nil {
			r.Bills = append(r.Bills, *bill)
		}
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Errors = append(r.Errors, EntryError{EntryID: entryID, Error: err.Error()})
	}
}

// errAlreadyGenerated aborts the entry transaction when its period already has a bill.
var errAlreadyGenerated = errors.New("recurring: period already generated")

// GenerateDue materialises the bills due by asOf for every active entry of the
// tenant. It is safe to call repeatedly and concurrently: each entry is handled in
// its own transaction holding the entry row lock, and a unique competence index
// backs the existence check. Entry failures are collected, not returned.
func (s *Service) GenerateDue(ctx context.Context, tenantID int64, asOf time.Time) (Report, error) {
	if tenantID <= 0 {
		return Report{}, ledger.Invalidf("tenant required")
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = ledger.DateOnly(asOf)
	report := Report{TenantID: tenantID, AsOf: asOf, Errors: []EntryError{}}

	entries, err := s.repo.ListRecurringEntries(ctx, tenantID, ledger.RecurringFilter{ActiveOnly: true})
	if err != nil {
		return report, err
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, bill, err := s.generateEntry(ctx, tenantID, entry.ID, asOf)
		if err != nil {
			s.logger.Error("ledger recurring entry failed",
				slog.Int64("tenant_id", tenantID), slog.Int64("entry_id", entry.ID), slog.Any("error", err))
		}
		report.add(entry.ID, outcome, bill, err)
	}
	if report.Generated > 0 {
		ledger.NotifyChanged(ctx, s.notifier, tenantID)
	}
	s.logger.Info("ledger recurring generation done",
		slog.Int64("tenant_id", tenantID),
		slog.String("as_of", asOf.Format("2006-01-02")),
		slog.Int("generated", report.Generated),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", len(report.Errors)),
	)
	return report, nil
}

// GenerateAll runs GenerateDue for every tenant holding an active entry. A failing
// tenant is logged and reported in the joined error while the others still run.
func (s *Service) GenerateAll(ctx context.Context, asOf time.Time) ([]Report, error) {
	tenants, err := s.repo.ListRecurringTenants(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]Report, 0, len(tenants))
	var errs []error
	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := s.GenerateDue(ctx, tenantID, asOf)
		if err != nil {
			s.logger.Error("ledger recurring generation failed", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("tenant %d: %w", tenantID, err))
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

func (s *Service) generateEntry(ctx context.Context, tenantID, entryID int64, asOf time.Time) (Outcome, *ledger.Bill, error) {
	var (
		outcome = OutcomeSkipped
		created *ledger.Bill
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		entry, err := tx.LockRecurringEntry(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		plan := planFor(entry, asOf)
		if plan.deactivate {
			return tx.AdvanceRecurringEntry(ctx, tenantID, entry.ID, entry.InstallmentsGenerated, false)
		}
		if !plan.due {
			return nil
		}
		competence := plan.period.String()
		exists, err := tx.BillExistsForCompetence(ctx, entry.Kind, tenantID, entry.ID, competence)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		installment := entry.InstallmentsGenerated + 1
		bill := ledger.Bill{
			TenantID:         tenantID,
			Kind:             entry.Kind,
			PartyID:          entry.PartyID,
			CategoryID:       entry.CategoryID,
			Description:      billDescription(entry, installment),
			Amount:           entry.Amount,
			DueDate:          plan.dueDate,
			AccountID:        entry.AccountID,
			RecurringEntryID: &entry.ID,
			Installment:      installment,
			Competence:       competence,
		}
		if entry.TotalInstallments != nil {
			bill.InstallmentTotal = *entry.TotalInstallments
		}
		bill.Status = bill.StatusAsOf(asOf)
		inserted, err := tx.InsertBill(ctx, bill)
		if errors.Is(err, ledger.ErrConflict) {
			return errAlreadyGenerated
		}
		if err != nil {
			return err
		}

		stillActive := entry.TotalInstallments == nil || installment < *entry.TotalInstallments
		if err := tx.AdvanceRecurringEntry(ctx, tenantID, entry.ID, installment, stillActive); err != nil {
			return err
		}
		outcome, created = OutcomeGenerated, &inserted
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyGenerated):
		return OutcomeSkipped, nil, nil
	case errors.Is(err, ledger.ErrNotFound):
		// Deleted between listing and locking.
		return OutcomeSkipped, nil, nil
	case err != nil:
		return OutcomeFailed, nil, err
	}
	return outcome, created, nil
}

type plan struct {
	due        bool
	deactivate bool
	period     ledger.Period
	dueDate    time.Time
}

// planFor decides whether entry owes a bill for the month of asOf.
func planFor(entry ledger.RecurringEntry, asOf time.Time) plan {
	p := plan{period: ledger.PeriodOf(asOf)}
	if !entry.Active {
		return p
	}
	if entry.TotalInstallments != nil && entry.InstallmentsGenerated >= *entry.TotalInstallments {
		p.deactivate = true
		return p
	}
	if entry.EndDate != nil && asOf.After(ledger.DateOnly(*entry.EndDate)) {
		p.deactivate = true
		return p
	}
	start := ledger.DateOnly(entry.StartDate)
	if asOf.Before(start) {
		return p
	}
	step := entry.Frequency.Months()
	if step == 0 || p.period.MonthsSince(ledger.PeriodOf(start))%step != 0 {
		return p
	}
	p.dueDate = p.period.DueDate(entry.DayOfMonth)
	if p.dueDate.After(asOf) || p.dueDate.Before(start) {
		return p
	}
	if entry.EndDate != nil && p.dueDate.After(ledger.DateOnly(*entry.EndDate)) {
		return p
	}
	p.due = true
	return p
}

func billDescription(entry ledger.RecurringEntry, installment int) string {
	if entry.TotalInstallments == nil {
		return entry.Description
	}
	return fmt.Sprintf("%s (%d/%d)", entry.Description, installment, *entry.TotalInstallments)
}
