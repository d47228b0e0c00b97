package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const movementColumns = `id, tenant_id, account_id, kind, direction, amount, movement_date, description,
	category_id, counter_account_id, transfer_id, source_kind, source_id,
	balance_before, balance_after, created_at, deleted_at`

func scanMovement(row scanner) (Movement, error) {
	var (
		mv         Movement
		kind       string
		direction  string
		transferID uuid.NullUUID
		sourceKind *string
		sourceID   *int64
	)
	err := row.Scan(
		&mv.ID, &mv.TenantID, &mv.AccountID, &kind, &direction, &mv.Amount, &mv.Date, &mv.Description,
		&mv.CategoryID, &mv.CounterAccountID, &transferID, &sourceKind, &sourceID,
		&mv.BalanceBefore, &mv.BalanceAfter, &mv.CreatedAt, &mv.DeletedAt,
	)
	if err != nil {
		return Movement{}, err
	}
	mv.Kind = MovementKind(kind)
	mv.Direction = Direction(direction)
	if transferID.Valid {
		id := transferID.UUID
		mv.TransferID = &id
	}
	if sourceKind != nil && sourceID != nil {
		mv.Source = &SourceRef{Kind: BillKind(*sourceKind), ID: *sourceID}
	}
	return mv, nil
}

func scanMovements(rows interface {
	scanner
	Next() bool
	Err() error
	Close()
}) ([]Movement, error) {
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		mv, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

// GetMovement loads one movement of the tenant.
func (s *Store) GetMovement(ctx context.Context, tenantID, id int64, scope Scope) (Movement, error) {
	query := fmt.Sprintf(`SELECT %s FROM movements WHERE tenant_id = $1 AND id = $2 AND %s`,
		movementColumns, scopeClause(scope, "deleted_at"))
	mv, err := scanMovement(s.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return Movement{}, translate(fmt.Sprintf("movement %d", id), err)
	}
	return mv, nil
}

// ListMovements returns movements newest first.
func (s *Store) ListMovements(ctx context.Context, tenantID int64, filter MovementFilter) ([]Movement, error) {
	where := whereBuilder{}
	where.add("tenant_id = ?", tenantID)
	where.raw(scopeClause(filter.Scope, "deleted_at"))
	if filter.AccountID != 0 {
		where.add("account_id = ?", filter.AccountID)
	}
	if filter.Kind != "" {
		where.add("kind = ?", string(filter.Kind))
	}
	if !filter.From.IsZero() {
		where.add("movement_date >= ?", DateOnly(filter.From))
	}
	if !filter.To.IsZero() {
		where.add("movement_date <= ?", DateOnly(filter.To))
	}
	query := fmt.Sprintf(`SELECT %s FROM movements WHERE %s ORDER BY movement_date DESC, id DESC`,
		movementColumns, where.String())
	if filter.Limit > 0 {
		query += " LIMIT " + where.next(filter.Limit)
	}
	rows, err := s.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, translate("list movements", err)
	}
	out, err := scanMovements(rows)
	if err != nil {
		return nil, translate("list movements", err)
	}
	return out, nil
}

// LatestMovement returns the last live movement recorded on the account.
func (s *Store) LatestMovement(ctx context.Context, tenantID, accountID int64) (Movement, error) {
	return latestMovement(ctx, s.pool, tenantID, accountID)
}

// CashFlow sums non-transfer movements per month; months without movements are omitted.
func (s *Store) CashFlow(ctx context.Context, tenantID int64, from, to Period) ([]MonthlyFlow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(movement_date, 'YYYY-MM') AS period,
		       COALESCE(SUM(amount) FILTER (WHERE direction = 'in'), 0),
		       COALESCE(SUM(amount) FILTER (WHERE direction = 'out'), 0)
		FROM movements
		WHERE tenant_id = $1 AND deleted_at IS NULL AND kind <> 'transferencia'
		  AND movement_date >= $2 AND movement_date <= $3
		GROUP BY 1
		ORDER BY 1`, tenantID, from.Start(), to.End())
	if err != nil {
		return nil, translate("cash flow", err)
	}
	defer rows.Close()

	var out []MonthlyFlow
	for rows.Next() {
		var (
			label string
			flow  MonthlyFlow
		)
		if err := rows.Scan(&label, &flow.In, &flow.Out); err != nil {
			return nil, translate("scan cash flow", err)
		}
		period, err := ParsePeriod(label)
		if err != nil {
			return nil, Internal("cash flow period", err)
		}
		flow.Period = period
		out = append(out, flow)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("cash flow", err)
	}
	return out, nil
}

func latestMovement(ctx context.Context, q querier, tenantID, accountID int64) (Movement, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM movements
		WHERE tenant_id = $1 AND account_id = $2 AND deleted_at IS NULL
		ORDER BY id DESC
		LIMIT 1`, movementColumns)
	mv, err := scanMovement(q.QueryRow(ctx, query, tenantID, accountID))
	if err != nil {
		return Movement{}, translate(fmt.Sprintf("latest movement of account %d", accountID), err)
	}
	return mv, nil
}

func (t *pgTx) InsertMovement(ctx context.Context, mv Movement) (Movement, error) {
	var (
		transferID uuid.NullUUID
		sourceKind *string
		sourceID   *int64
	)
	if mv.TransferID != nil {
		transferID = uuid.NullUUID{UUID: *mv.TransferID, Valid: true}
	}
	if mv.Source != nil {
		kind := string(mv.Source.Kind)
		sourceKind, sourceID = &kind, &mv.Source.ID
	}
	query := fmt.Sprintf(`
		INSERT INTO movements (
			tenant_id, account_id, kind, direction, amount, movement_date, description,
			category_id, counter_account_id, transfer_id, source_kind, source_id,
			balance_before, balance_after
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING %s`, movementColumns)
	created, err := scanMovement(t.q.QueryRow(ctx, query,
		mv.TenantID, mv.AccountID, string(mv.Kind), string(mv.Direction), mv.Amount, DateOnly(mv.Date), mv.Description,
		mv.CategoryID, mv.CounterAccountID, transferID, sourceKind, sourceID,
		mv.BalanceBefore, mv.BalanceAfter,
	))
	if err != nil {
		return Movement{}, translate("insert movement", err)
	}
	return created, nil
}

func (t *pgTx) GetMovement(ctx context.Context, tenantID, id int64) (Movement, error) {
	query := fmt.Sprintf(`SELECT %s FROM movements WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, movementColumns)
	mv, err := scanMovement(t.q.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return Movement{}, translate(fmt.Sprintf("movement %d", id), err)
	}
	return mv, nil
}

func (t *pgTx) LatestMovement(ctx context.Context, tenantID, accountID int64) (Movement, error) {
	return latestMovement(ctx, t.q, tenantID, accountID)
}

func (t *pgTx) ListTransferLegs(ctx context.Context, tenantID int64, transferID uuid.UUID) ([]Movement, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM movements
		WHERE tenant_id = $1 AND transfer_id = $2 AND deleted_at IS NULL
		ORDER BY id`, movementColumns)
	rows, err := t.q.Query(ctx, query, tenantID, transferID)
	if err != nil {
		return nil, translate("transfer legs", err)
	}
	out, err := scanMovements(rows)
	if err != nil {
		return nil, translate("transfer legs", err)
	}
	return out, nil
}

func (t *pgTx) SoftDeleteMovement(ctx context.Context, tenantID, id int64, at time.Time) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE movements SET deleted_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id, at)
	if err != nil {
		return translate("delete movement", err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundf("movement %d", id)
	}
	return nil
}
