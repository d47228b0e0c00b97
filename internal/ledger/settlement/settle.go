package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/movements"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// SettleInput describes a payment or receipt. Zero PaidAmount means the full
// bill amount; zero PaidDate means today.
type SettleInput struct {
	TenantID      int64
	ID            int64
	PaidAmount    decimal.Decimal
	PaidDate      time.Time
	AccountID     *int64
	PaymentMethod string
	ActorID       int64
}

// Result is the committed outcome of a settlement.
type Result struct {
	Bill     ledger.Bill
	Movement *ledger.Movement
}

// SettlePayable marks a payable as pago.
func (s *Service) SettlePayable(ctx context.Context, input SettleInput) (Result, error) {
	return s.Settle(ctx, ledger.BillPayable, input)
}

// SettleReceivable marks a receivable as recebido.
func (s *Service) SettleReceivable(ctx context.Context, input SettleInput) (Result, error) {
	return s.Settle(ctx, ledger.BillReceivable, input)
}

// Settle moves an open bill to its terminal status. When an account is given the
// cash movement is recorded in the same transaction, and a settlement alert is
// appended; any failure rolls all of it back.
func (s *Service) Settle(ctx context.Context, kind ledger.BillKind, input SettleInput) (Result, error) {
	res, err := s.settle(ctx, kind, input)
	s.metrics.SettlementDone(kind, err)
	return res, err
}

func (s *Service) settle(ctx context.Context, kind ledger.BillKind, input SettleInput) (Result, error) {
	if !kind.Valid() {
		return Result{}, ledger.Invalidf("unknown bill kind %q", kind)
	}
	if input.TenantID <= 0 || input.ID <= 0 {
		return Result{}, ledger.Invalidf("tenant and bill required")
	}
	if input.PaidAmount.IsNegative() {
		return Result{}, ledger.Invalidf("paid amount must be positive")
	}
	paidDate := input.PaidDate
	if paidDate.IsZero() {
		paidDate = s.now()
	}
	paidDate = ledger.DateOnly(paidDate)

	var res Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		res = Result{}
		bill, err := tx.LockBill(ctx, kind, input.TenantID, input.ID)
		if err != nil {
			return err
		}
		if bill.Status.Terminal() {
			return fmt.Errorf("%w: %s %d is already %s", ledger.ErrAlreadySettled, kind, bill.ID, bill.Status)
		}

		paid := ledger.Money(input.PaidAmount)
		if paid.IsZero() {
			paid = bill.Amount
		}
		bill.Status = kind.SettledStatus()
		bill.PaidAmount = decimal.NullDecimal{Decimal: paid, Valid: true}
		bill.PaidDate = &paidDate
		bill.PaymentMethod = strings.TrimSpace(input.PaymentMethod)
		if input.AccountID != nil {
			bill.AccountID = input.AccountID
		}
		if err := tx.SettleBill(ctx, bill); err != nil {
			return err
		}

		if input.AccountID != nil {
			mv, err := s.recorder.Apply(ctx, tx, movements.RecordInput{
				TenantID:    input.TenantID,
				AccountID:   *input.AccountID,
				Kind:        kind.MovementKind(),
				Amount:      paid,
				Date:        paidDate,
				Description: movementDescription(kind, bill),
				CategoryID:  bill.CategoryID,
				Source:      &ledger.SourceRef{Kind: kind, ID: bill.ID},
			})
			if err != nil {
				return err
			}
			res.Movement = &mv
		}

		if _, err := tx.InsertAlert(ctx, ledger.Alert{
			TenantID: input.TenantID,
			Kind:     kind.SettledAlert(),
			RefKind:  kind,
			RefID:    bill.ID,
			Message:  settledMessage(kind, bill, paid),
			Date:     paidDate,
		}); err != nil {
			return err
		}
		res.Bill = bill
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if res.Movement != nil {
		s.recorder.Committed(ctx, *res.Movement)
	} else {
		ledger.NotifyChanged(ctx, s.notifier, input.TenantID)
	}
	s.recordAudit(ctx, kind, input, res)
	s.logger.Info("ledger bill settled",
		slog.Int64("tenant_id", input.TenantID),
		slog.String("kind", string(kind)),
		slog.Int64("bill_id", input.ID),
		slog.String("paid_amount", res.Bill.PaidAmount.Decimal.StringFixed(2)),
	)
	return res, nil
}

func (s *Service) recordAudit(ctx context.Context, kind ledger.BillKind, input SettleInput, res Result) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"status":      string(res.Bill.Status),
		"paid_amount": res.Bill.PaidAmount.Decimal.StringFixed(2),
		"paid_date":   res.Bill.PaidDate.Format("2006-01-02"),
	}
	if res.Movement != nil {
		meta["movement_id"] = res.Movement.ID
		meta["account_id"] = res.Movement.AccountID
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: input.TenantID,
		ActorID:  input.ActorID,
		Action:   "settle",
		Entity:   auditEntity(kind),
		EntityID: entityID(res.Bill.ID),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("ledger settlement audit failed", slog.Int64("bill_id", res.Bill.ID), slog.Any("error", err))
	}
}

func auditEntity(kind ledger.BillKind) string {
	if kind == ledger.BillReceivable {
		return "receivable"
	}
	return "payable"
}

func movementDescription(kind ledger.BillKind, bill ledger.Bill) string {
	prefix := "Pagamento"
	if kind == ledger.BillReceivable {
		prefix = "Recebimento"
	}
	return fmt.Sprintf("%s: %s", prefix, bill.Description)
}

func settledMessage(kind ledger.BillKind, bill ledger.Bill, paid decimal.Decimal) string {
	verb := "paga"
	if kind == ledger.BillReceivable {
		verb = "recebida"
	}
	return fmt.Sprintf("%s #%d %s: %s (%s)", billLabel(kind), bill.ID, verb, bill.Description, paid.StringFixed(2))
}
