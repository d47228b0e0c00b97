package alerts

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/ledgertest"
)

type countingNotifier struct{ calls atomic.Int32 }

func (n *countingNotifier) LedgerChanged(context.Context, int64) { n.calls.Add(1) }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedBill(store *ledgertest.Store, kind ledger.BillKind, tenantID int64, due string, status ledger.BillStatus) ledger.Bill {
	return store.AddBill(ledger.Bill{
		TenantID:    tenantID,
		Kind:        kind,
		Description: "Energia",
		Amount:      decimal.RequireFromString("320.50"),
		DueDate:     day(due),
		Status:      status,
	})
}

func TestScanDueRaisesOverdueAndDueSoon(t *testing.T) {
	store := ledgertest.New()
	notifier := &countingNotifier{}
	svc := NewService(store, notifier, nil)
	ctx := context.Background()

	late := seedBill(store, ledger.BillPayable, 1, "2025-04-10", ledger.StatusPending)
	storedLate := seedBill(store, ledger.BillReceivable, 1, "2025-04-01", ledger.StatusOverdue)
	today := seedBill(store, ledger.BillPayable, 1, "2025-04-15", ledger.StatusPending)
	soon := seedBill(store, ledger.BillReceivable, 1, "2025-04-18", ledger.StatusPending)
	seedBill(store, ledger.BillPayable, 1, "2025-04-19", ledger.StatusPending)
	seedBill(store, ledger.BillPayable, 1, "2025-04-01", ledger.StatusPaid)
	seedBill(store, ledger.BillPayable, 2, "2025-04-01", ledger.StatusPending)

	result, err := svc.ScanDue(ctx, 1, day("2025-04-15"), 3)
	require.NoError(t, err)
	require.Equal(t, 1, result.MarkedOverdue)
	require.Equal(t, 4, result.Raised)
	require.EqualValues(t, 1, notifier.calls.Load())

	bill, err := store.GetBill(ctx, ledger.BillPayable, 1, late.ID, ledger.ActiveOnly)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusOverdue, bill.Status)

	alerts, err := svc.List(ctx, 1, true, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 4)

	got := map[ledger.AlertKind][]int64{}
	for _, a := range alerts {
		got[a.Kind] = append(got[a.Kind], a.RefID)
		require.Equal(t, day("2025-04-15"), a.Date)
		require.NotEmpty(t, a.Message)
	}
	require.ElementsMatch(t, []int64{late.ID, storedLate.ID}, got[ledger.AlertOverdue])
	require.ElementsMatch(t, []int64{today.ID, soon.ID}, got[ledger.AlertDueSoon])

	other, err := svc.List(ctx, 2, false, 0)
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestScanDueIsIdempotent(t *testing.T) {
	store := ledgertest.New()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	seedBill(store, ledger.BillPayable, 1, "2025-04-10", ledger.StatusPending)
	seedBill(store, ledger.BillPayable, 1, "2025-04-16", ledger.StatusPending)

	_, err := svc.ScanDue(ctx, 1, day("2025-04-15"), 0)
	require.NoError(t, err)
	again, err := svc.ScanDue(ctx, 1, day("2025-04-15"), 0)
	require.NoError(t, err)
	require.Zero(t, again.MarkedOverdue)
	require.Zero(t, again.Raised)

	count, err := svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestScanDueRollsBackOnFailure(t *testing.T) {
	store := ledgertest.New()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	late := seedBill(store, ledger.BillPayable, 1, "2025-04-10", ledger.StatusPending)

	store.Fail("InsertAlert", errors.New("disk full"))
	_, err := svc.ScanDue(ctx, 1, day("2025-04-15"), 3)
	require.Error(t, err)

	bill, err := store.GetBill(ctx, ledger.BillPayable, 1, late.ID, ledger.ActiveOnly)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, bill.Status)
}

// listedBeforeSettle returns bills as they looked before a concurrent settlement.
type listedBeforeSettle struct {
	*ledgertest.Store
	overdue []ledger.Bill
}

func (l listedBeforeSettle) ListBills(ctx context.Context, kind ledger.BillKind, tenantID int64, filter ledger.BillFilter) ([]ledger.Bill, error) {
	if filter.Status == ledger.StatusOverdue {
		var out []ledger.Bill
		for _, b := range l.overdue {
			if b.Kind == kind && b.TenantID == tenantID {
				out = append(out, b)
			}
		}
		return out, nil
	}
	return l.Store.ListBills(ctx, kind, tenantID, filter)
}

func TestScanDueSkipsBillsSettledAfterListing(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	paid := seedBill(store, ledger.BillPayable, 1, "2025-04-01", ledger.StatusPaid)
	still := seedBill(store, ledger.BillReceivable, 1, "2025-04-02", ledger.StatusOverdue)
	gone := seedBill(store, ledger.BillReceivable, 1, "2025-04-03", ledger.StatusOverdue)
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		return tx.SoftDeleteBill(ctx, ledger.BillReceivable, 1, gone.ID, day("2025-04-10"))
	}))

	stale := paid
	stale.Status = ledger.StatusOverdue
	svc := NewService(listedBeforeSettle{Store: store, overdue: []ledger.Bill{stale, still, gone}}, nil, nil)

	result, err := svc.ScanDue(ctx, 1, day("2025-04-15"), 3)
	require.NoError(t, err)
	require.Equal(t, 1, result.Raised)

	alerts, err := store.ListAlerts(ctx, 1, false, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, still.ID, alerts[0].RefID)
	require.Equal(t, ledger.AlertOverdue, alerts[0].Kind)
}

func TestScanDueValidation(t *testing.T) {
	svc := NewService(ledgertest.New(), nil, nil)
	_, err := svc.ScanDue(context.Background(), 0, day("2025-04-15"), 3)
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = svc.ScanDue(context.Background(), 1, day("2025-04-15"), -1)
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
}

func TestScanAllCoversTenantsWithOpenBills(t *testing.T) {
	store := ledgertest.New()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	seedBill(store, ledger.BillPayable, 1, "2025-04-10", ledger.StatusPending)
	seedBill(store, ledger.BillReceivable, 4, "2025-04-11", ledger.StatusPending)
	seedBill(store, ledger.BillPayable, 6, "2025-04-01", ledger.StatusPaid)

	results, err := svc.ScanAll(ctx, day("2025-04-15"), 3)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, int64(1), results[0].TenantID)
	require.Equal(t, int64(4), results[1].TenantID)
	for _, r := range results {
		require.Equal(t, 1, r.MarkedOverdue)
		require.Equal(t, 1, r.Raised)
	}
}

func TestMarkRead(t *testing.T) {
	store := ledgertest.New()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	seedBill(store, ledger.BillPayable, 1, "2025-04-10", ledger.StatusPending)
	seedBill(store, ledger.BillPayable, 1, "2025-04-11", ledger.StatusPending)
	seedBill(store, ledger.BillPayable, 1, "2025-04-12", ledger.StatusPending)
	_, err := svc.ScanDue(ctx, 1, day("2025-04-15"), 3)
	require.NoError(t, err)

	alerts, err := svc.List(ctx, 1, true, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	require.NoError(t, svc.MarkRead(ctx, 1, alerts[0].ID))
	require.ErrorIs(t, svc.MarkRead(ctx, 2, alerts[1].ID), ledger.ErrNotFound)
	require.ErrorIs(t, svc.MarkRead(ctx, 1, 999), ledger.ErrNotFound)

	count, err := svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	changed, err := svc.MarkAllRead(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, changed)

	unread, err := svc.List(ctx, 1, true, 0)
	require.NoError(t, err)
	require.Empty(t, unread)

	all, err := svc.List(ctx, 1, false, 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
