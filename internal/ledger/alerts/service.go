// Package alerts lists, acknowledges and raises due-date alerts for payables and receivables.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

const (
	// DefaultDueSoonDays is the look-ahead window used when callers pass zero.
	DefaultDueSoonDays = 3
	defaultListLimit   = 50
	maxListLimit       = 200
)

var billKinds = []ledger.BillKind{ledger.BillPayable, ledger.BillReceivable}

// Service exposes the alert store.
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

// List returns the newest alerts first.
func (s *Service) List(ctx context.Context, tenantID int64, unreadOnly bool, limit int) ([]ledger.Alert, error) {
	if tenantID <= 0 {
		return nil, ledger.Invalidf("tenant required")
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	alerts, err := s.repo.ListAlerts(ctx, tenantID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []ledger.Alert{}
	}
	return alerts, nil
}

// UnreadCount counts unread alerts.
func (s *Service) UnreadCount(ctx context.Context, tenantID int64) (int, error) {
	return s.repo.CountUnreadAlerts(ctx, tenantID)
}

// MarkRead flags one alert as read.
func (s *Service) MarkRead(ctx context.Context, tenantID, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		return tx.MarkAlertRead(ctx, tenantID, id)
	})
	if err != nil {
		return err
	}
	ledger.NotifyChanged(ctx, s.notifier, tenantID)
	return nil
}

// MarkAllRead flags every unread alert of the tenant and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, tenantID int64) (int64, error) {
	var changed int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		var err error
		changed, err = tx.MarkAllAlertsRead(ctx, tenantID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		ledger.NotifyChanged(ctx, s.notifier, tenantID)
	}
	return changed, nil
}

// ScanResult summarises one due-date scan.
type ScanResult struct {
	TenantID      int64 `json:"tenant_id"`
	MarkedOverdue int   `json:"marked_overdue"`
	Raised        int   `json:"raised"`
}

// ScanDue flips pending bills due before asOf to vencido, raises one vencido alert per
// overdue bill and one vencimento_proximo alert per pending bill due within
// dueSoonDays of asOf. Rerunning raises nothing new.
func (s *Service) ScanDue(ctx context.Context, tenantID int64, asOf time.Time, dueSoonDays int) (ScanResult, error) {
	if tenantID <= 0 {
		return ScanResult{}, ledger.Invalidf("tenant required")
	}
	if dueSoonDays < 0 {
		return ScanResult{}, ledger.Invalidf("due soon window must not be negative")
	}
	if dueSoonDays == 0 {
		dueSoonDays = DefaultDueSoonDays
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = ledger.DateOnly(asOf)
	horizon := asOf.AddDate(0, 0, dueSoonDays)

	// Bills stored as vencido at creation never pass through MarkOverdue.
	known := make(map[ledger.BillKind][]ledger.Bill, len(billKinds))
	for _, kind := range billKinds {
		bills, err := s.repo.ListBills(ctx, kind, tenantID, ledger.BillFilter{Status: ledger.StatusOverdue})
		if err != nil {
			return ScanResult{}, err
		}
		known[kind] = bills
	}

	result := ScanResult{TenantID: tenantID}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		result = ScanResult{TenantID: tenantID}
		for _, kind := range billKinds {
			flipped, err := tx.MarkOverdue(ctx, kind, tenantID, asOf)
			if err != nil {
				return err
			}
			result.MarkedOverdue += len(flipped)

			for _, bill := range flipped {
				if err := s.raise(ctx, tx, &result, bill, ledger.AlertOverdue, asOf); err != nil {
					return err
				}
			}
			for _, listed := range known[kind] {
				// Re-read under lock; the bill may have been settled or deleted since listing.
				bill, err := tx.LockBill(ctx, kind, tenantID, listed.ID)
				if errors.Is(err, ledger.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				if bill.Status != ledger.StatusOverdue {
					continue
				}
				if err := s.raise(ctx, tx, &result, bill, ledger.AlertOverdue, asOf); err != nil {
					return err
				}
			}

			soon, err := tx.ListDueBetween(ctx, kind, tenantID, asOf, horizon)
			if err != nil {
				return err
			}
			for _, bill := range soon {
				if err := s.raise(ctx, tx, &result, bill, ledger.AlertDueSoon, asOf); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return ScanResult{}, err
	}
	if result.MarkedOverdue > 0 || result.Raised > 0 {
		ledger.NotifyChanged(ctx, s.notifier, tenantID)
	}
	s.logger.Info("ledger due scan done",
		slog.Int64("tenant_id", tenantID),
		slog.String("as_of", asOf.Format("2006-01-02")),
		slog.Int("marked_overdue", result.MarkedOverdue),
		slog.Int("raised", result.Raised),
	)
	return result, nil
}

func (s *Service) raise(ctx context.Context, tx ledger.TxRepository, result *ScanResult, bill ledger.Bill, kind ledger.AlertKind, asOf time.Time) error {
	inserted, err := tx.InsertAlert(ctx, ledger.Alert{
		TenantID: bill.TenantID,
		Kind:     kind,
		RefKind:  bill.Kind,
		RefID:    bill.ID,
		Message:  dueMessage(kind, bill),
		Date:     asOf,
	})
	if err != nil {
		return err
	}
	if inserted {
		result.Raised++
	}
	return nil
}

// ScanAll runs ScanDue for every tenant with open bills. A failing tenant is
// logged and reported in the joined error while the others still run.
func (s *Service) ScanAll(ctx context.Context, asOf time.Time, dueSoonDays int) ([]ScanResult, error) {
	tenants, err := s.repo.ListOpenBillTenants(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]ScanResult, 0, len(tenants))
	var errs []error
	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := s.ScanDue(ctx, tenantID, asOf, dueSoonDays)
		if err != nil {
			s.logger.Error("ledger due scan failed", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("tenant %d: %w", tenantID, err))
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

func dueMessage(kind ledger.AlertKind, bill ledger.Bill) string {
	label := "Conta a pagar"
	if bill.Kind == ledger.BillReceivable {
		label = "Conta a receber"
	}
	verb := "vence em"
	if kind == ledger.AlertOverdue {
		verb = "venceu em"
	}
	return fmt.Sprintf("%s #%d %s %s: %s (%s)",
		label, bill.ID, verb, bill.DueDate.Format("02/01/2006"), bill.Description, bill.Amount.StringFixed(2))
}
