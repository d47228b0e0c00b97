// Package transfers moves money between two accounts of a tenant as one unit.
package transfers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/movements"
)

// Input describes a transfer request.
type Input struct {
	TenantID      int64
	FromAccountID int64
	ToAccountID   int64
	Amount        decimal.Decimal
	Date          time.Time
	Description   string
	CategoryID    *int64
}

// Result holds both legs of a committed transfer.
type Result struct {
	TransferID uuid.UUID
	Debit      ledger.Movement
	Credit     ledger.Movement
}

// DefaultDescription is used when a transfer carries no description.
const DefaultDescription = "Transferência entre contas"

// Service coordinates transfers.
type Service struct {
	repo     ledger.Repository
	recorder *movements.Recorder
	metrics  *ledger.Metrics
	logger   *slog.Logger
	now      func() time.Time
	newID    func() uuid.UUID
}

// NewService builds Service.
func NewService(repo ledger.Repository, recorder *movements.Recorder, metrics *ledger.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, recorder: recorder, metrics: metrics, logger: logger, now: time.Now, newID: uuid.New}
}

// Transfer debits the source and credits the destination in one transaction.
// Both accounts are locked in ascending id order; a source balance that would go
// negative fails with ErrInsufficientFunds before anything is written.
func (s *Service) Transfer(ctx context.Context, input Input) (Result, error) {
	res, err := s.transfer(ctx, input)
	s.metrics.TransferDone(err)
	return res, err
}

func (s *Service) transfer(ctx context.Context, input Input) (Result, error) {
	if input.TenantID <= 0 {
		return Result{}, ledger.Invalidf("tenant required")
	}
	if input.FromAccountID <= 0 || input.ToAccountID <= 0 {
		return Result{}, ledger.Invalidf("source and destination accounts required")
	}
	if input.FromAccountID == input.ToAccountID {
		return Result{}, ledger.Invalidf("source and destination accounts must differ")
	}
	amount := ledger.Money(input.Amount)
	if !amount.IsPositive() {
		return Result{}, ledger.Invalidf("amount must be positive")
	}
	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = DefaultDescription
	}

	res := Result{TransferID: s.newID()}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		first, second := input.FromAccountID, input.ToAccountID
		if second < first {
			first, second = second, first
		}
		locked := make(map[int64]ledger.Account, 2)
		for _, id := range []int64{first, second} {
			acc, err := tx.LockAccount(ctx, input.TenantID, id)
			if err != nil {
				return err
			}
			locked[id] = acc
		}
		src, dst := locked[input.FromAccountID], locked[input.ToAccountID]

		if src.CurrentBalance.Sub(amount).IsNegative() {
			return fmt.Errorf("%w: account %d holds %s, transfer needs %s",
				ledger.ErrInsufficientFunds, src.ID, src.CurrentBalance.StringFixed(2), amount.StringFixed(2))
		}

		var err error
		res.Debit, err = s.recorder.ApplyLocked(ctx, tx, src, movements.RecordInput{
			Kind:             ledger.MovementTransfer,
			Direction:        ledger.DirectionOut,
			Amount:           amount,
			Date:             date,
			Description:      fmt.Sprintf("%s (para %s)", description, dst.Name),
			CategoryID:       input.CategoryID,
			CounterAccountID: &dst.ID,
			TransferID:       &res.TransferID,
		})
		if err != nil {
			return err
		}
		res.Credit, err = s.recorder.ApplyLocked(ctx, tx, dst, movements.RecordInput{
			Kind:             ledger.MovementTransfer,
			Direction:        ledger.DirectionIn,
			Amount:           amount,
			Date:             date,
			Description:      fmt.Sprintf("%s (de %s)", description, src.Name),
			CategoryID:       input.CategoryID,
			CounterAccountID: &src.ID,
			TransferID:       &res.TransferID,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	s.recorder.Committed(ctx, res.Debit, res.Credit)
	s.logger.Info("ledger transfer committed",
		slog.Int64("tenant_id", input.TenantID),
		slog.String("transfer_id", res.TransferID.String()),
		slog.Int64("from_account_id", input.FromAccountID),
		slog.Int64("to_account_id", input.ToAccountID),
		slog.String("amount", amount.StringFixed(2)),
	)
	return res, nil
}
