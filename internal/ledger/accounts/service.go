// Package accounts owns bank account records. Balances are read here but only
// ever written by the movement recorder.
package accounts

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

// CreateInput describes a new bank account.
type CreateInput struct {
	TenantID       int64
	Name           string
	BankName       string
	BankCode       string
	Agency         string
	Number         string
	Type           string
	OpeningBalance decimal.Decimal
}

// UpdateInput carries the fields to change; nil fields are left untouched.
type UpdateInput struct {
	Name     *string
	BankName *string
	BankCode *string
	Agency   *string
	Number   *string
	Type     *string
	Active   *bool
}

// Statement is an account's movements in a date range bracketed by the balances around it.
type Statement struct {
	Account        ledger.Account
	From           time.Time
	To             time.Time
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
	TotalIn        decimal.Decimal
	TotalOut       decimal.Decimal
	Movements      []ledger.Movement
}

// DefaultType is used when an account is created without a type.
const DefaultType = "corrente"

// Service coordinates account operations.
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

// Create registers an account whose current balance starts at its opening balance.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Account, error) {
	if input.TenantID <= 0 {
		return ledger.Account{}, ledger.Invalidf("tenant required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return ledger.Account{}, ledger.Invalidf("account name required")
	}
	accType := strings.TrimSpace(input.Type)
	if accType == "" {
		accType = DefaultType
	}
	acc := ledger.Account{
		TenantID:       input.TenantID,
		Name:           name,
		BankName:       strings.TrimSpace(input.BankName),
		BankCode:       strings.TrimSpace(input.BankCode),
		Agency:         strings.TrimSpace(input.Agency),
		Number:         strings.TrimSpace(input.Number),
		Type:           accType,
		OpeningBalance: ledger.Money(input.OpeningBalance),
		Active:         true,
	}
	var created ledger.Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		var err error
		created, err = tx.InsertAccount(ctx, acc)
		return err
	})
	if err != nil {
		return ledger.Account{}, err
	}
	s.logger.Info("ledger account created", slog.Int64("tenant_id", created.TenantID), slog.Int64("account_id", created.ID))
	ledger.NotifyChanged(ctx, s.notifier, created.TenantID)
	return created, nil
}

// Get loads a live account.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (ledger.Account, error) {
	return s.repo.GetAccount(ctx, tenantID, id, ledger.ActiveOnly)
}

// List returns the tenant's live accounts, optionally only the active ones.
func (s *Service) List(ctx context.Context, tenantID int64, activeOnly bool) ([]ledger.Account, error) {
	return s.repo.ListAccounts(ctx, tenantID, ledger.AccountFilter{ActiveOnly: activeOnly})
}

// Update changes descriptive fields. The balance is never touched here.
func (s *Service) Update(ctx context.Context, tenantID, id int64, input UpdateInput) (ledger.Account, error) {
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return ledger.Account{}, ledger.Invalidf("account name required")
	}
	var updated ledger.Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		acc, err := tx.LockAccount(ctx, tenantID, id)
		if err != nil {
			return err
		}
		applyUpdate(&acc, input)
		updated, err = tx.UpdateAccount(ctx, acc)
		return err
	})
	if err != nil {
		return ledger.Account{}, err
	}
	ledger.NotifyChanged(ctx, s.notifier, tenantID)
	return updated, nil
}

func applyUpdate(acc *ledger.Account, input UpdateInput) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&acc.Name, input.Name)
	set(&acc.BankName, input.BankName)
	set(&acc.BankCode, input.BankCode)
	set(&acc.Agency, input.Agency)
	set(&acc.Number, input.Number)
	set(&acc.Type, input.Type)
	if acc.Type == "" {
		acc.Type = DefaultType
	}
	if input.Active != nil {
		acc.Active = *input.Active
	}
}

// SoftDelete hides the account. Accounts referenced by a live movement cannot be deleted.
func (s *Service) SoftDelete(ctx context.Context, tenantID, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		if _, err := tx.LockAccount(ctx, tenantID, id); err != nil {
			return err
		}
		count, err := tx.CountMovements(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return ledger.Conflictf("account %d has %d movements", id, count)
		}
		return tx.SoftDeleteAccount(ctx, tenantID, id, s.now().UTC())
	})
	if err != nil {
		return err
	}
	s.logger.Info("ledger account deleted", slog.Int64("tenant_id", tenantID), slog.Int64("account_id", id))
	ledger.NotifyChanged(ctx, s.notifier, tenantID)
	return nil
}

// Statement lists an account's movements dated within [from, to] in chronological order.
func (s *Service) Statement(ctx context.Context, tenantID, id int64, from, to time.Time) (Statement, error) {
	if from.IsZero() || to.IsZero() {
		return Statement{}, ledger.Invalidf("statement range required")
	}
	from, to = ledger.DateOnly(from), ledger.DateOnly(to)
	if to.Before(from) {
		return Statement{}, ledger.Invalidf("statement range ends before it starts")
	}
	acc, err := s.repo.GetAccount(ctx, tenantID, id, ledger.ActiveOnly)
	if err != nil {
		return Statement{}, err
	}
	all, err := s.repo.ListMovements(ctx, tenantID, ledger.MovementFilter{AccountID: id, To: to})
	if err != nil {
		return Statement{}, err
	}

	stmt := Statement{
		Account:        acc,
		From:           from,
		To:             to,
		OpeningBalance: acc.OpeningBalance,
		TotalIn:        decimal.Zero,
		TotalOut:       decimal.Zero,
	}
	// all is newest first; walk it backwards.
	for i := len(all) - 1; i >= 0; i-- {
		mv := all[i]
		if mv.Date.Before(from) {
			stmt.OpeningBalance = mv.Direction.Apply(stmt.OpeningBalance, mv.Amount)
			continue
		}
		if mv.Direction == ledger.DirectionOut {
			stmt.TotalOut = stmt.TotalOut.Add(mv.Amount)
		} else {
			stmt.TotalIn = stmt.TotalIn.Add(mv.Amount)
		}
		stmt.Movements = append(stmt.Movements, mv)
	}
	stmt.ClosingBalance = stmt.OpeningBalance.Add(stmt.TotalIn).Sub(stmt.TotalOut)
	return stmt, nil
}
