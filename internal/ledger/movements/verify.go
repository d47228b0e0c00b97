package movements

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

// Check compares a stored balance with the one implied by the movement history.
type Check struct {
	TenantID  int64
	AccountID int64
	Stored    decimal.Decimal
	Expected  decimal.Decimal
	// LatestMovementID is zero when the account has no live movements.
	LatestMovementID int64
}

// Drifted reports whether the stored balance disagrees with the history.
func (c Check) Drifted() bool {
	return !c.Stored.Equal(c.Expected)
}

// Verify checks one account: its balance must equal the latest movement's
// balance_after, or the opening balance when there is none.
func (r *Recorder) Verify(ctx context.Context, tenantID, accountID int64) (Check, error) {
	return r.verify(ctx, tenantID, accountID)
}

// verify reads the balance and the latest movement under the account row lock so
// a movement committing in between cannot look like drift.
func (r *Recorder) verify(ctx context.Context, tenantID, accountID int64) (Check, error) {
	var check Check
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		acc, err := tx.LockAccount(ctx, tenantID, accountID)
		if err != nil {
			return err
		}
		check = Check{TenantID: acc.TenantID, AccountID: acc.ID, Stored: acc.CurrentBalance, Expected: acc.OpeningBalance}
		latest, err := tx.LatestMovement(ctx, tenantID, accountID)
		switch {
		case err == nil:
			check.Expected = latest.BalanceAfter
			check.LatestMovementID = latest.ID
		case errors.Is(err, ledger.ErrNotFound):
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return Check{}, err
	}
	return check, nil
}

// VerifyTenant checks every live account of the tenant and returns the drifted ones.
func (r *Recorder) VerifyTenant(ctx context.Context, tenantID int64) ([]Check, error) {
	accounts, err := r.repo.ListAccounts(ctx, tenantID, ledger.AccountFilter{})
	if err != nil {
		return nil, err
	}
	var drifted []Check
	for _, acc := range accounts {
		check, err := r.verify(ctx, tenantID, acc.ID)
		if errors.Is(err, ledger.ErrNotFound) {
			// Deleted after listing.
			continue
		}
		if err != nil {
			return nil, err
		}
		if check.Drifted() {
			r.logger.Warn("ledger balance drift",
				slog.Int64("tenant_id", tenantID),
				slog.Int64("account_id", acc.ID),
				slog.String("stored", check.Stored.StringFixed(2)),
				slog.String("expected", check.Expected.StringFixed(2)),
			)
			drifted = append(drifted, check)
		}
	}
	return drifted, nil
}
