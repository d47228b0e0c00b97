package ledger

import (
	"context"
	"fmt"
	"time"
)

type billTable struct {
	name  string
	party string
}

var billTables = map[BillKind]billTable{
	BillPayable:    {name: "payables", party: "supplier_id"},
	BillReceivable: {name: "receivables", party: "client_id"},
}

func tableFor(kind BillKind) (billTable, error) {
	tbl, ok := billTables[kind]
	if !ok {
		return billTable{}, Invalidf("unknown bill kind %q", kind)
	}
	return tbl, nil
}

func (b billTable) columns() string {
	return fmt.Sprintf(`id, tenant_id, %s, category_id, description, amount, due_date, status,
	paid_amount, paid_date, payment_method, account_id, recurring_entry_id,
	installment, installment_total, competence, notes, created_at, updated_at, deleted_at`, b.party)
}

func scanBill(kind BillKind, row scanner) (Bill, error) {
	var (
		bill       Bill
		status     string
		competence *string
	)
	err := row.Scan(
		&bill.ID, &bill.TenantID, &bill.PartyID, &bill.CategoryID, &bill.Description, &bill.Amount, &bill.DueDate, &status,
		&bill.PaidAmount, &bill.PaidDate, &bill.PaymentMethod, &bill.AccountID, &bill.RecurringEntryID,
		&bill.Installment, &bill.InstallmentTotal, &competence, &bill.Notes, &bill.CreatedAt, &bill.UpdatedAt, &bill.DeletedAt,
	)
	if err != nil {
		return Bill{}, err
	}
	bill.Kind = kind
	bill.Status = BillStatus(status)
	if competence != nil {
		bill.Competence = *competence
	}
	return bill, nil
}

func queryBills(ctx context.Context, q querier, kind BillKind, query string, args ...any) ([]Bill, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bill
	for rows.Next() {
		bill, err := scanBill(kind, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bill)
	}
	return out, rows.Err()
}

func nullableCompetence(c string) *string {
	if c == "" {
		return nil
	}
	return &c
}

func statusStrings(statuses []BillStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

// GetBill loads one payable or receivable.
func (s *Store) GetBill(ctx context.Context, kind BillKind, tenantID, id int64, scope Scope) (Bill, error) {
	tbl, err := tableFor(kind)
	if err != nil {
		return Bill{}, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 AND id = $2 AND %s`,
		tbl.columns(), tbl.name, scopeClause(scope, "deleted_at"))
	bill, err := scanBill(kind, s.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return Bill{}, translate(fmt.Sprintf("%s %d", tbl.name, id), err)
	}
	return bill, nil
}

// ListBills returns bills ordered by due date.
func (s *Store) ListBills(ctx context.Context, kind BillKind, tenantID int64, filter BillFilter) ([]Bill, error) {
	tbl, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	where := whereBuilder{}
	where.add("tenant_id = ?", tenantID)
	where.raw(scopeClause(filter.Scope, "deleted_at"))
	if filter.Status != "" {
		where.add("status = ?", string(filter.Status))
	}
	if filter.OpenOnly {
		where.raw("status IN ('pendente', 'vencido')")
	}
	if filter.PartyID != 0 {
		where.add(tbl.party+" = ?", filter.PartyID)
	}
	if !filter.DueFrom.IsZero() {
		where.add("due_date >= ?", DateOnly(filter.DueFrom))
	}
	if !filter.DueTo.IsZero() {
		where.add("due_date <= ?", DateOnly(filter.DueTo))
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY due_date, id`, tbl.columns(), tbl.name, where.String())
	if filter.Limit > 0 {
		query += " LIMIT " + where.next(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + where.next(filter.Offset)
	}
	out, err := queryBills(ctx, s.pool, kind, query, where.args...)
	if err != nil {
		return nil, translate("list "+tbl.name, err)
	}
	return out, nil
}

// SumBills counts and totals live bills. Settled bills contribute their paid amount.
func (s *Store) SumBills(ctx context.Context, kind BillKind, tenantID int64, agg BillAggregate) (BillTotals, error) {
	tbl, err := tableFor(kind)
	if err != nil {
		return BillTotals{}, err
	}
	where := whereBuilder{}
	where.add("tenant_id = ?", tenantID)
	where.raw("deleted_at IS NULL")
	if len(agg.Statuses) > 0 {
		where.add("status = ANY(?)", statusStrings(agg.Statuses))
	}
	if !agg.DueFrom.IsZero() {
		where.add("due_date >= ?", DateOnly(agg.DueFrom))
	}
	if !agg.DueTo.IsZero() {
		where.add("due_date <= ?", DateOnly(agg.DueTo))
	}
	if !agg.PaidFrom.IsZero() {
		where.add("paid_date >= ?", DateOnly(agg.PaidFrom))
	}
	if !agg.PaidTo.IsZero() {
		where.add("paid_date <= ?", DateOnly(agg.PaidTo))
	}
	query := fmt.Sprintf(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status IN ('pago', 'recebido') THEN COALESCE(paid_amount, amount) ELSE amount END), 0)
		FROM %s WHERE %s`, tbl.name, where.String())
	var totals BillTotals
	if err := s.pool.QueryRow(ctx, query, where.args...).Scan(&totals.Count, &totals.Total); err != nil {
		return BillTotals{}, translate("sum "+tbl.name, err)
	}
	return totals, nil
}

// ListOpenBillTenants returns every tenant with a pending or overdue bill.
func (s *Store) ListOpenBillTenants(ctx context.Context) ([]int64, error) {
	ids, err := collectTenants(ctx, s.pool, `
		SELECT tenant_id FROM payables WHERE deleted_at IS NULL AND status IN ('pendente', 'vencido')
		UNION
		SELECT tenant_id FROM receivables WHERE deleted_at IS NULL AND status IN ('pendente', 'vencido')
		ORDER BY 1`)
	if err != nil {
		return nil, translate("list open bill tenants", err)
	}
	return ids, nil
}

func (t *pgTx) LockBill(ctx context.Context, kind BillKind, tenantID, id int64) (Bill, error) {
	tbl, err := tableFor(kind)
	if err != nil {
		return Bill{}, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL FOR UPDATE`,
		tbl.columns(), tbl.name)
	bill, err := scanBill(kind, t.q.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return Bill{}, translate(fmt.Sprintf("%s %d", tbl.name, id), err)
	}
	return bill, nil
}

func (t *pgTx) InsertBill(ctx context.Context, bill Bill) (Bill, error) {
	tbl, err := tableFor(bill.Kind)
	if err != nil {
		return Bill{}, err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (
			tenant_id, %s, category_id, description, amount, due_date, status, account_id,
			recurring_entry_id, installment, installment_total, competence, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING %s`, tbl.name, tbl.party, tbl.columns())
	created, err := scanBill(bill.Kind, t.q.QueryRow(ctx, query,
		bill.TenantID, bill.PartyID, bill.CategoryID, bill.Description, bill.Amount, DateOnly(bill.DueDate),
		string(bill.Status), bill.AccountID, bill.RecurringEntryID, bill.Installment, bill.InstallmentTotal,
		nullableCompetence(bill.Competence), bill.Notes,
	))
	if err != nil {
		return Bill{}, translate("insert "+tbl.name, err)
	}
	return created, nil
}

func (t *pgTx) UpdateBill(ctx context.Context, bill Bill) (Bill, error) {
	tbl, err := tableFor(bill.Kind)
	if err != nil {
		return Bill{}, err
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $3, category_id = $4, description = $5, amount = $6, due_date = $7, status = $8,
		    account_id = $9, notes = $10, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
		RETURNING %s`, tbl.name, tbl.party, tbl.columns())
	updated, err := scanBill(bill.Kind, t.q.QueryRow(ctx, query,
		bill.TenantID, bill.ID, bill.PartyID, bill.CategoryID, bill.Description, bill.Amount, DateOnly(bill.DueDate),
		string(bill.Status), bill.AccountID, bill.Notes,
	))
	if err != nil {
		return Bill{}, translate(fmt.Sprintf("%s %d", tbl.name, bill.ID), err)
	}
	return updated, nil
}

func (t *pgTx) SettleBill(ctx context.Context, bill Bill) error {
	tbl, err := tableFor(bill.Kind)
	if err != nil {
		return err
	}
	var paidDate *time.Time
	if bill.PaidDate != nil {
		d := DateOnly(*bill.PaidDate)
		paidDate = &d
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $3, paid_amount = $4, paid_date = $5, payment_method = $6, account_id = $7, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tbl.name)
	tag, err := t.q.Exec(ctx, query,
		bill.TenantID, bill.ID, string(bill.Status), bill.PaidAmount, paidDate, bill.PaymentMethod, bill.AccountID)
	if err != nil {
		return translate("settle "+tbl.name, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundf("%s %d", tbl.name, bill.ID)
	}
	return nil
}

func (t *pgTx) SoftDeleteBill(ctx context.Context, kind BillKind, tenantID, id int64, at time.Time) error {
	tbl, err := tableFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET deleted_at = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tbl.name)
	tag, err := t.q.Exec(ctx, query, tenantID, id, at)
	if err != nil {
		return translate("delete "+tbl.name, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundf("%s %d", tbl.name, id)
	}
	return nil
}

// MarkOverdue flips pending bills due before asOf to overdue and returns them.
func (t *pgTx) MarkOverdue(ctx context.Context, kind BillKind, tenantID int64, asOf time.Time) ([]Bill, error) {
	tbl, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET status = 'vencido', updated_at = NOW()
		WHERE tenant_id = $1 AND status = 'pendente' AND due_date < $2 AND deleted_at IS NULL
		RETURNING %s`, tbl.name, tbl.columns())
	out, err := queryBills(ctx, t.q, kind, query, tenantID, DateOnly(asOf))
	if err != nil {
		return nil, translate("mark overdue "+tbl.name, err)
	}
	return out, nil
}

func (t *pgTx) ListDueBetween(ctx context.Context, kind BillKind, tenantID int64, from, to time.Time) ([]Bill, error) {
	tbl, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE tenant_id = $1 AND status = 'pendente' AND due_date >= $2 AND due_date <= $3 AND deleted_at IS NULL
		ORDER BY due_date, id`, tbl.columns(), tbl.name)
	out, err := queryBills(ctx, t.q, kind, query, tenantID, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, translate("due "+tbl.name, err)
	}
	return out, nil
}

// BillExistsForCompetence also sees soft-deleted bills so a deleted installment is not regenerated.
func (t *pgTx) BillExistsForCompetence(ctx context.Context, kind BillKind, tenantID, entryID int64, competence string) (bool, error) {
	tbl, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s WHERE tenant_id = $1 AND recurring_entry_id = $2 AND competence = $3
		)`, tbl.name)
	var exists bool
	if err := t.q.QueryRow(ctx, query, tenantID, entryID, competence).Scan(&exists); err != nil {
		return false, translate("competence lookup", err)
	}
	return exists, nil
}
