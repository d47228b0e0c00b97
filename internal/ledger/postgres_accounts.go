package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const accountColumns = `id, tenant_id, name, bank_name, bank_code, agency, number, account_type,
	opening_balance, current_balance, active, created_at, updated_at, deleted_at`

func scanAccount(row scanner) (Account, error) {
	var acc Account
	err := row.Scan(
		&acc.ID, &acc.TenantID, &acc.Name, &acc.BankName, &acc.BankCode, &acc.Agency, &acc.Number, &acc.Type,
		&acc.OpeningBalance, &acc.CurrentBalance, &acc.Active, &acc.CreatedAt, &acc.UpdatedAt, &acc.DeletedAt,
	)
	return acc, err
}

// GetAccount loads one account of the tenant.
func (s *Store) GetAccount(ctx context.Context, tenantID, id int64, scope Scope) (Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM bank_accounts WHERE tenant_id = $1 AND id = $2 AND %s`,
		accountColumns, scopeClause(scope, "deleted_at"))
	acc, err := scanAccount(s.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return Account{}, translate(fmt.Sprintf("account %d", id), err)
	}
	return acc, nil
}

// ListAccounts lists the tenant's accounts ordered by name.
func (s *Store) ListAccounts(ctx context.Context, tenantID int64, filter AccountFilter) ([]Account, error) {
	where := whereBuilder{}
	where.add("tenant_id = ?", tenantID)
	where.raw(scopeClause(filter.Scope, "deleted_at"))
	if filter.ActiveOnly {
		where.raw("active")
	}
	query := fmt.Sprintf(`SELECT %s FROM bank_accounts WHERE %s ORDER BY name, id`, accountColumns, where.String())
	rows, err := s.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, translate("list accounts", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, translate("scan account", err)
		}
		out = append(out, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list accounts", err)
	}
	return out, nil
}

// ListAccountTenants returns every tenant owning at least one live account.
func (s *Store) ListAccountTenants(ctx context.Context) ([]int64, error) {
	ids, err := collectTenants(ctx, s.pool, `SELECT DISTINCT tenant_id FROM bank_accounts WHERE deleted_at IS NULL ORDER BY 1`)
	if err != nil {
		return nil, translate("list account tenants", err)
	}
	return ids, nil
}

func (t *pgTx) InsertAccount(ctx context.Context, acc Account) (Account, error) {
	query := fmt.Sprintf(`
		INSERT INTO bank_accounts (
			tenant_id, name, bank_name, bank_code, agency, number, account_type,
			opening_balance, current_balance, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9)
		RETURNING %s`, accountColumns)
	created, err := scanAccount(t.q.QueryRow(ctx, query,
		acc.TenantID, acc.Name, acc.BankName, acc.BankCode, acc.Agency, acc.Number, acc.Type,
		acc.OpeningBalance, acc.Active,
	))
	if err != nil {
		return Account{}, translate("insert account", err)
	}
	return created, nil
}

// UpdateAccount rewrites descriptive fields only; current_balance is owned by the movement recorder.
func (t *pgTx) UpdateAccount(ctx context.Context, acc Account) (Account, error) {
	query := fmt.Sprintf(`
		UPDATE bank_accounts
		SET name = $3, bank_name = $4, bank_code = $5, agency = $6, number = $7,
		    account_type = $8, active = $9, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
		RETURNING %s`, accountColumns)
	updated, err := scanAccount(t.q.QueryRow(ctx, query,
		acc.TenantID, acc.ID, acc.Name, acc.BankName, acc.BankCode, acc.Agency, acc.Number, acc.Type, acc.Active,
	))
	if err != nil {
		return Account{}, translate(fmt.Sprintf("account %d", acc.ID), err)
	}
	return updated, nil
}

func (t *pgTx) SoftDeleteAccount(ctx context.Context, tenantID, id int64, at time.Time) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE bank_accounts SET deleted_at = $3, active = FALSE, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id, at)
	if err != nil {
		return translate("delete account", err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundf("account %d", id)
	}
	return nil
}

func (t *pgTx) CountMovements(ctx context.Context, tenantID, accountID int64) (int, error) {
	var count int
	err := t.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM movements
		WHERE tenant_id = $1 AND (account_id = $2 OR counter_account_id = $2) AND deleted_at IS NULL`,
		tenantID, accountID).Scan(&count)
	if err != nil {
		return 0, translate("count movements", err)
	}
	return count, nil
}

func (t *pgTx) LockAccount(ctx context.Context, tenantID, id int64) (Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM bank_accounts WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL FOR UPDATE`, accountColumns)
	acc, err := scanAccount(t.q.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return Account{}, translate(fmt.Sprintf("account %d", id), err)
	}
	return acc, nil
}

func (t *pgTx) SetAccountBalance(ctx context.Context, tenantID, id int64, balance decimal.Decimal) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE bank_accounts SET current_balance = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id, balance)
	if err != nil {
		return translate("set balance", err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundf("account %d", id)
	}
	return nil
}
