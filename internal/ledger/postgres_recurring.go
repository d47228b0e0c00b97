package ledger

import (
	"context"
	"fmt"
	"time"
)

const recurringColumns = `id, tenant_id, kind, description, amount, category_id, party_id, account_id,
	frequency, day_of_month, start_date, end_date, total_installments, installments_generated,
	active, created_at, updated_at, deleted_at`

func scanRecurring(row scanner) (RecurringEntry, error) {
	var (
		entry     RecurringEntry
		kind      string
		frequency string
		day       int16
	)
	err := row.Scan(
		&entry.ID, &entry.TenantID, &kind, &entry.Description, &entry.Amount, &entry.CategoryID, &entry.PartyID, &entry.AccountID,
		&frequency, &day, &entry.StartDate, &entry.EndDate, &entry.TotalInstallments, &entry.InstallmentsGenerated,
		&entry.Active, &entry.CreatedAt, &entry.UpdatedAt, &entry.DeletedAt,
	)
	if err != nil {
		return RecurringEntry{}, err
	}
	entry.Kind = BillKind(kind)
	entry.Frequency = Frequency(frequency)
	entry.DayOfMonth = int(day)
	return entry, nil
}

func dateOrNil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := DateOnly(*t)
	return &d
}

// GetRecurringEntry loads a live recurring entry.
func (s *Store) GetRecurringEntry(ctx context.Context, tenantID, id int64) (RecurringEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM recurring_entries WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, recurringColumns)
	entry, err := scanRecurring(s.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return RecurringEntry{}, translate(fmt.Sprintf("recurring entry %d", id), err)
	}
	return entry, nil
}

// ListRecurringEntries lists live entries in creation order.
func (s *Store) ListRecurringEntries(ctx context.Context, tenantID int64, filter RecurringFilter) ([]RecurringEntry, error) {
	where := whereBuilder{}
	where.add("tenant_id = ?", tenantID)
	where.raw("deleted_at IS NULL")
	if filter.Kind != "" {
		where.add("kind = ?", string(filter.Kind))
	}
	if filter.ActiveOnly {
		where.raw("active")
	}
	query := fmt.Sprintf(`SELECT %s FROM recurring_entries WHERE %s ORDER BY id`, recurringColumns, where.String())
	rows, err := s.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, translate("list recurring entries", err)
	}
	defer rows.Close()

	var out []RecurringEntry
	for rows.Next() {
		entry, err := scanRecurring(rows)
		if err != nil {
			return nil, translate("scan recurring entry", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list recurring entries", err)
	}
	return out, nil
}

// ListRecurringTenants returns every tenant with an active recurring entry.
func (s *Store) ListRecurringTenants(ctx context.Context) ([]int64, error) {
	ids, err := collectTenants(ctx, s.pool, `
		SELECT DISTINCT tenant_id FROM recurring_entries WHERE active AND deleted_at IS NULL ORDER BY 1`)
	if err != nil {
		return nil, translate("list recurring tenants", err)
	}
	return ids, nil
}

func (t *pgTx) InsertRecurringEntry(ctx context.Context, entry RecurringEntry) (RecurringEntry, error) {
	query := fmt.Sprintf(`
		INSERT INTO recurring_entries (
			tenant_id, kind, description, amount, category_id, party_id, account_id,
			frequency, day_of_month, start_date, end_date, total_installments, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING %s`, recurringColumns)
	created, err := scanRecurring(t.q.QueryRow(ctx, query,
		entry.TenantID, string(entry.Kind), entry.Description, entry.Amount, entry.CategoryID, entry.PartyID, entry.AccountID,
		string(entry.Frequency), int16(entry.DayOfMonth), DateOnly(entry.StartDate), dateOrNil(entry.EndDate),
		entry.TotalInstallments, entry.Active,
	))
	if err != nil {
		return RecurringEntry{}, translate("insert recurring entry", err)
	}
	return created, nil
}

func (t *pgTx) UpdateRecurringEntry(ctx context.Context, entry RecurringEntry) (RecurringEntry, error) {
	query := fmt.Sprintf(`
		UPDATE recurring_entries
		SET description = $3, amount = $4, category_id = $5, party_id = $6, account_id = $7,
		    frequency = $8, day_of_month = $9, end_date = $10, total_installments = $11,
		    active = $12, deleted_at = $13, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
		RETURNING %s`, recurringColumns)
	updated, err := scanRecurring(t.q.QueryRow(ctx, query,
		entry.TenantID, entry.ID, entry.Description, entry.Amount, entry.CategoryID, entry.PartyID, entry.AccountID,
		string(entry.Frequency), int16(entry.DayOfMonth), dateOrNil(entry.EndDate), entry.TotalInstallments,
		entry.Active, entry.DeletedAt,
	))
	if err != nil {
		return RecurringEntry{}, translate(fmt.Sprintf("recurring entry %d", entry.ID), err)
	}
	return updated, nil
}

func (t *pgTx) LockRecurringEntry(ctx context.Context, tenantID, id int64) (RecurringEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM recurring_entries
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
		FOR UPDATE`, recurringColumns)
	entry, err := scanRecurring(t.q.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return RecurringEntry{}, translate(fmt.Sprintf("recurring entry %d", id), err)
	}
	return entry, nil
}

func (t *pgTx) AdvanceRecurringEntry(ctx context.Context, tenantID, id int64, generated int, active bool) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE recurring_entries
		SET installments_generated = $3, active = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id, generated, active)
	if err != nil {
		return translate("advance recurring entry", err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundf("recurring entry %d", id)
	}
	return nil
}
