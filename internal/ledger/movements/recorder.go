// Package movements is the only writer of account balances. Every balance
// change is an appended movement carrying before and after snapshots.
package movements

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

// RecordInput describes one balance change.
type RecordInput struct {
	TenantID  int64
	AccountID int64
	Kind      ledger.MovementKind
	// Direction is required for transfer legs and derived from Kind otherwise.
	Direction        ledger.Direction
	Amount           decimal.Decimal
	Date             time.Time
	Description      string
	CategoryID       *int64
	CounterAccountID *int64
	TransferID       *uuid.UUID
	Source           *ledger.SourceRef
}

// Recorder appends movements and keeps account balances in step.
type Recorder struct {
	repo     ledger.Repository
	notifier ledger.ChangeNotifier
	metrics  *ledger.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecorder builds Recorder.
func NewRecorder(repo ledger.Repository, notifier ledger.ChangeNotifier, metrics *ledger.Metrics, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, notifier: notifier, metrics: metrics, logger: logger, now: time.Now}
}

func (r *Recorder) normalise(input RecordInput) (RecordInput, error) {
	if input.TenantID <= 0 {
		return input, ledger.Invalidf("tenant required")
	}
	if input.AccountID <= 0 {
		return input, ledger.Invalidf("account required")
	}
	if !input.Kind.Valid() {
		return input, ledger.Invalidf("unknown movement kind %q", input.Kind)
	}
	input.Amount = ledger.Money(input.Amount)
	if !input.Amount.IsPositive() {
		return input, ledger.Invalidf("amount must be positive")
	}
	input.Description = strings.TrimSpace(input.Description)
	if input.Description == "" {
		return input, ledger.Invalidf("description required")
	}
	if input.Date.IsZero() {
		input.Date = r.now()
	}
	input.Date = ledger.DateOnly(input.Date)
	switch input.Kind {
	case ledger.MovementTransfer:
		if input.Direction != ledger.DirectionIn && input.Direction != ledger.DirectionOut {
			return input, ledger.Invalidf("transfer leg needs a direction")
		}
	default:
		want := ledger.DirectionFor(input.Kind)
		if input.Direction != "" && input.Direction != want {
			return input, ledger.Invalidf("%s cannot move %s", input.Kind, input.Direction)
		}
		input.Direction = want
	}
	return input, nil
}

// Record appends a movement in its own transaction.
func (r *Recorder) Record(ctx context.Context, input RecordInput) (ledger.Movement, error) {
	var mv ledger.Movement
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		var err error
		mv, err = r.Apply(ctx, tx, input)
		return err
	})
	if err != nil {
		return ledger.Movement{}, err
	}
	r.Committed(ctx, mv)
	return mv, nil
}

// Apply locks the account and appends the movement inside the caller's transaction.
// The caller must call Committed once the transaction commits.
func (r *Recorder) Apply(ctx context.Context, tx ledger.TxRepository, input RecordInput) (ledger.Movement, error) {
	input, err := r.normalise(input)
	if err != nil {
		return ledger.Movement{}, err
	}
	acc, err := tx.LockAccount(ctx, input.TenantID, input.AccountID)
	if err != nil {
		return ledger.Movement{}, err
	}
	return r.append(ctx, tx, acc, input)
}

// ApplyLocked appends the movement on an account the caller already locked in tx.
func (r *Recorder) ApplyLocked(ctx context.Context, tx ledger.TxRepository, acc ledger.Account, input RecordInput) (ledger.Movement, error) {
	input.TenantID = acc.TenantID
	input.AccountID = acc.ID
	input, err := r.normalise(input)
	if err != nil {
		return ledger.Movement{}, err
	}
	return r.append(ctx, tx, acc, input)
}

func (r *Recorder) append(ctx context.Context, tx ledger.TxRepository, acc ledger.Account, input RecordInput) (ledger.Movement, error) {
	before := acc.CurrentBalance
	after := input.Direction.Apply(before, input.Amount)
	mv, err := tx.InsertMovement(ctx, ledger.Movement{
		TenantID:         input.TenantID,
		AccountID:        input.AccountID,
		Kind:             input.Kind,
		Direction:        input.Direction,
		Amount:           input.Amount,
		Date:             input.Date,
		Description:      input.Description,
		CategoryID:       input.CategoryID,
		CounterAccountID: input.CounterAccountID,
		TransferID:       input.TransferID,
		Source:           input.Source,
		BalanceBefore:    before,
		BalanceAfter:     after,
	})
	if err != nil {
		return ledger.Movement{}, err
	}
	if err := tx.SetAccountBalance(ctx, input.TenantID, input.AccountID, after); err != nil {
		return ledger.Movement{}, err
	}
	return mv, nil
}

// Committed publishes side effects of movements whose transaction has committed.
func (r *Recorder) Committed(ctx context.Context, mvs ...ledger.Movement) {
	tenants := map[int64]struct{}{}
	for _, mv := range mvs {
		r.metrics.MovementRecorded(mv)
		r.logger.Info("ledger movement recorded",
			slog.Int64("tenant_id", mv.TenantID),
			slog.Int64("account_id", mv.AccountID),
			slog.Int64("movement_id", mv.ID),
			slog.String("kind", string(mv.Kind)),
			slog.String("amount", mv.Amount.StringFixed(2)),
			slog.String("balance_after", mv.BalanceAfter.StringFixed(2)),
		)
		tenants[mv.TenantID] = struct{}{}
	}
	for tenantID := range tenants {
		ledger.NotifyChanged(ctx, r.notifier, tenantID)
	}
}

// ManualInput is a user-entered credit or debit.
type ManualInput struct {
	TenantID    int64
	AccountID   int64
	Kind        ledger.MovementKind
	Amount      decimal.Decimal
	Date        time.Time
	Description string
	CategoryID  *int64
}

// CreateManual records an entrada or saida typed in by a user.
func (r *Recorder) CreateManual(ctx context.Context, input ManualInput) (ledger.Movement, error) {
	if input.Kind != ledger.MovementIn && input.Kind != ledger.MovementOut {
		return ledger.Movement{}, ledger.Invalidf("manual movements are %s or %s", ledger.MovementIn, ledger.MovementOut)
	}
	if input.Date.IsZero() {
		return ledger.Movement{}, ledger.Invalidf("movement date required")
	}
	return r.Record(ctx, RecordInput{
		TenantID:    input.TenantID,
		AccountID:   input.AccountID,
		Kind:        input.Kind,
		Amount:      input.Amount,
		Date:        input.Date,
		Description: input.Description,
		CategoryID:  input.CategoryID,
	})
}

// Get loads a live movement.
func (r *Recorder) Get(ctx context.Context, tenantID, id int64) (ledger.Movement, error) {
	return r.repo.GetMovement(ctx, tenantID, id, ledger.ActiveOnly)
}

// List returns movements newest first.
func (r *Recorder) List(ctx context.Context, tenantID int64, filter ledger.MovementFilter) ([]ledger.Movement, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, ledger.Invalidf("unknown movement kind %q", filter.Kind)
	}
	return r.repo.ListMovements(ctx, tenantID, filter)
}

// SoftDelete removes the most recent movement of an account and restores the
// balance it replaced. Transfer legs go together; settlement movements stay.
func (r *Recorder) SoftDelete(ctx context.Context, tenantID, id int64) error {
	var legs []ledger.Movement
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		mv, err := tx.GetMovement(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if mv.Source != nil {
			return ledger.Conflictf("movement %d settles %s %d; reopen the bill instead", id, mv.Source.Kind, mv.Source.ID)
		}
		legs = []ledger.Movement{mv}
		if mv.TransferID != nil {
			legs, err = tx.ListTransferLegs(ctx, tenantID, *mv.TransferID)
			if err != nil {
				return err
			}
		}
		sort.Slice(legs, func(i, j int) bool { return legs[i].AccountID < legs[j].AccountID })

		at := r.now().UTC()
		for _, leg := range legs {
			if _, err := tx.LockAccount(ctx, tenantID, leg.AccountID); err != nil {
				return err
			}
		}
		for _, leg := range legs {
			latest, err := tx.LatestMovement(ctx, tenantID, leg.AccountID)
			if err != nil {
				return err
			}
			if latest.ID != leg.ID {
				return ledger.Conflictf("movement %d is not the latest on account %d", leg.ID, leg.AccountID)
			}
			if err := tx.SoftDeleteMovement(ctx, tenantID, leg.ID, at); err != nil {
				return err
			}
			if err := tx.SetAccountBalance(ctx, tenantID, leg.AccountID, leg.BalanceBefore); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, leg := range legs {
		r.logger.Info("ledger movement deleted",
			slog.Int64("tenant_id", tenantID),
			slog.Int64("account_id", leg.AccountID),
			slog.Int64("movement_id", leg.ID),
			slog.String("balance_after", leg.BalanceBefore.StringFixed(2)),
		)
	}
	ledger.NotifyChanged(ctx, r.notifier, tenantID)
	return nil
}
