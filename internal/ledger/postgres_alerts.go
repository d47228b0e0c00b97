package ledger

import (
	"context"
	"fmt"
)

const alertColumns = `id, tenant_id, kind, reference_kind, reference_id, message, alert_date, read, created_at`

func scanAlert(row scanner) (Alert, error) {
	var (
		alert   Alert
		kind    string
		refKind string
	)
	err := row.Scan(&alert.ID, &alert.TenantID, &kind, &refKind, &alert.RefID, &alert.Message, &alert.Date, &alert.Read, &alert.CreatedAt)
	if err != nil {
		return Alert{}, err
	}
	alert.Kind = AlertKind(kind)
	alert.RefKind = BillKind(refKind)
	return alert, nil
}

// ListAlerts returns alerts newest first.
func (s *Store) ListAlerts(ctx context.Context, tenantID int64, unreadOnly bool, limit int) ([]Alert, error) {
	where := whereBuilder{}
	where.add("tenant_id = ?", tenantID)
	if unreadOnly {
		where.raw("NOT read")
	}
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE %s ORDER BY alert_date DESC, id DESC`, alertColumns, where.String())
	if limit > 0 {
		query += " LIMIT " + where.next(limit)
	}
	rows, err := s.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, translate("list alerts", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, translate("scan alert", err)
		}
		out = append(out, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list alerts", err)
	}
	return out, nil
}

// CountUnreadAlerts counts the tenant's unread alerts.
func (s *Store) CountUnreadAlerts(ctx context.Context, tenantID int64) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE tenant_id = $1 AND NOT read`, tenantID).Scan(&count); err != nil {
		return 0, translate("count alerts", err)
	}
	return count, nil
}

func (t *pgTx) InsertAlert(ctx context.Context, alert Alert) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		INSERT INTO alerts (tenant_id, kind, reference_kind, reference_id, message, alert_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, kind, reference_kind, reference_id) DO NOTHING`,
		alert.TenantID, string(alert.Kind), string(alert.RefKind), alert.RefID, alert.Message, DateOnly(alert.Date))
	if err != nil {
		return false, translate("insert alert", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) MarkAlertRead(ctx context.Context, tenantID, id int64) error {
	tag, err := t.q.Exec(ctx, `UPDATE alerts SET read = TRUE WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return translate("mark alert read", err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundf("alert %d", id)
	}
	return nil
}

func (t *pgTx) MarkAllAlertsRead(ctx context.Context, tenantID int64) (int64, error) {
	tag, err := t.q.Exec(ctx, `UPDATE alerts SET read = TRUE WHERE tenant_id = $1 AND NOT read`, tenantID)
	if err != nil {
		return 0, translate("mark alerts read", err)
	}
	return tag.RowsAffected(), nil
}
