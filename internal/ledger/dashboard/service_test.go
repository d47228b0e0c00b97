package dashboard

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/movements"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/transfers"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, got.Equal(dec(want)), "want %s, got %s", want, got)
}

func newTestService(t *testing.T, store *ledgertest.Store) (*Service, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute, nil)
	format, err := NewFormatter("pt-BR", "BRL")
	require.NoError(t, err)
	return NewService(store, cache, format, nil), cache
}

func seedLedger(t *testing.T, store *ledgertest.Store, notifier ledger.ChangeNotifier) {
	t.Helper()
	ctx := context.Background()
	a := store.AddAccount(ledger.Account{TenantID: 1, Name: "Itaú", Type: "corrente", OpeningBalance: dec("1000"), Active: true})
	b := store.AddAccount(ledger.Account{TenantID: 1, Name: "Caixa", Type: "poupanca", OpeningBalance: dec("500"), Active: true})

	recorder := movements.NewRecorder(store, notifier, nil, nil)
	for _, in := range []movements.ManualInput{
		{TenantID: 1, AccountID: a.ID, Kind: ledger.MovementIn, Amount: dec("200"), Date: day("2025-04-02"), Description: "Venda"},
		{TenantID: 1, AccountID: a.ID, Kind: ledger.MovementOut, Amount: dec("50"), Date: day("2025-04-03"), Description: "Tarifa"},
		{TenantID: 1, AccountID: b.ID, Kind: ledger.MovementIn, Amount: dec("80"), Date: day("2025-02-10"), Description: "Rendimento"},
	} {
		_, err := recorder.CreateManual(ctx, in)
		require.NoError(t, err)
	}
	_, err := transfers.NewService(store, recorder, nil, nil).Transfer(ctx, transfers.Input{
		TenantID: 1, FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("100"), Date: day("2025-04-05"),
	})
	require.NoError(t, err)

	paidDate := day("2025-04-01")
	for _, bill := range []ledger.Bill{
		{Kind: ledger.BillPayable, Amount: dec("100"), DueDate: day("2025-04-05")},
		{Kind: ledger.BillPayable, Amount: dec("300"), DueDate: day("2025-04-20")},
		{Kind: ledger.BillPayable, Amount: dec("70"), DueDate: day("2025-04-01"), Status: ledger.StatusPaid,
			PaidAmount: decimal.NewNullDecimal(dec("70")), PaidDate: &paidDate},
		{Kind: ledger.BillPayable, Amount: dec("40"), DueDate: day("2025-05-02")},
		{Kind: ledger.BillReceivable, Amount: dec("250"), DueDate: day("2025-04-15")},
		{Kind: ledger.BillReceivable, Amount: dec("90"), DueDate: day("2025-03-10"), Status: ledger.StatusOverdue},
	} {
		bill.TenantID = 1
		bill.Description = "Conta"
		store.AddBill(bill)
	}
}

func TestSummaryAggregates(t *testing.T) {
	store := ledgertest.New()
	svc, cache := newTestService(t, store)
	seedLedger(t, store, cache)

	summary, err := svc.Summary(context.Background(), 1, day("2025-04-15"))
	require.NoError(t, err)

	require.Equal(t, "2025-04-15", summary.AsOf)
	requireAmount(t, "1730", summary.TotalBalance)
	require.Len(t, summary.Accounts, 2)
	require.Equal(t, "Caixa", summary.Accounts[0].Name)
	requireAmount(t, "680", summary.Accounts[0].Balance)
	requireAmount(t, "1050", summary.Accounts[1].Balance)

	require.Equal(t, 3, summary.Payables.Month.Count)
	requireAmount(t, "470", summary.Payables.Month.Total)
	require.Equal(t, 1, summary.Payables.Overdue.Count)
	requireAmount(t, "100", summary.Payables.Overdue.Total)
	require.Equal(t, 1, summary.Payables.Upcoming.Count)
	requireAmount(t, "300", summary.Payables.Upcoming.Total)

	require.Equal(t, 1, summary.Receivables.Month.Count)
	requireAmount(t, "250", summary.Receivables.Month.Total)
	requireAmount(t, "90", summary.Receivables.Overdue.Total)
	requireAmount(t, "250", summary.Receivables.Upcoming.Total)

	requireAmount(t, "200", summary.CashIn)
	requireAmount(t, "50", summary.CashOut)
	require.Zero(t, summary.UnreadAlerts)
}

func TestSummaryEmptyTenant(t *testing.T) {
	svc, _ := newTestService(t, ledgertest.New())

	summary, err := svc.Summary(context.Background(), 42, day("2025-04-15"))
	require.NoError(t, err)
	require.NotNil(t, summary.Accounts)
	require.Empty(t, summary.Accounts)
	requireAmount(t, "0", summary.TotalBalance)
	requireAmount(t, "0", summary.Payables.Month.Total)
	requireAmount(t, "0", summary.CashIn)

	_, err = svc.Summary(context.Background(), 0, day("2025-04-15"))
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
}

func TestSummaryCachedUntilLedgerChanges(t *testing.T) {
	store := ledgertest.New()
	svc, cache := newTestService(t, store)
	ctx := context.Background()
	store.AddAccount(ledger.Account{TenantID: 1, Name: "Itaú", OpeningBalance: dec("100"), Active: true})

	first, err := svc.Summary(ctx, 1, day("2025-04-15"))
	require.NoError(t, err)
	requireAmount(t, "100", first.TotalBalance)

	store.AddAccount(ledger.Account{TenantID: 1, Name: "Caixa", OpeningBalance: dec("50"), Active: true})
	stale, err := svc.Summary(ctx, 1, day("2025-04-15"))
	require.NoError(t, err)
	requireAmount(t, "100", stale.TotalBalance)

	before, err := cache.Version(ctx, 1)
	require.NoError(t, err)
	cache.LedgerChanged(ctx, 1)
	after, err := cache.Version(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, before+1, after)

	fresh, err := svc.Summary(ctx, 1, day("2025-04-15"))
	require.NoError(t, err)
	requireAmount(t, "150", fresh.TotalBalance)

	other, err := cache.Version(ctx, 2)
	require.NoError(t, err)
	require.EqualValues(t, 1, other)
}

func TestSummaryConcurrentCallers(t *testing.T) {
	store := ledgertest.New()
	svc, cache := newTestService(t, store)
	seedLedger(t, store, cache)

	var g errgroup.Group
	results := make([]Summary, 16)
	for i := range results {
		i := i
		g.Go(func() error {
			var err error
			results[i], err = svc.Summary(context.Background(), 1, day("2025-04-15"))
			return err
		})
	}
	require.NoError(t, g.Wait())
	for _, r := range results {
		requireAmount(t, "1730", r.TotalBalance)
	}
}

func TestCashFlowFillsEveryMonth(t *testing.T) {
	store := ledgertest.New()
	svc, cache := newTestService(t, store)
	seedLedger(t, store, cache)

	flow, err := svc.CashFlow(context.Background(), 1, day("2025-04-15"), 0)
	require.NoError(t, err)
	require.Equal(t, "2024-11", flow.From)
	require.Equal(t, "2025-04", flow.To)
	require.Len(t, flow.Points, DefaultCashFlowMonths)

	periods := make([]string, 0, len(flow.Points))
	for _, p := range flow.Points {
		periods = append(periods, p.Period)
		require.NotEmpty(t, p.InLabel)
		require.NotEmpty(t, p.NetLabel)
	}
	require.Equal(t, []string{"2024-11", "2024-12", "2025-01", "2025-02", "2025-03", "2025-04"}, periods)

	require.Equal(t, "Novembro 2024", flow.Points[0].Label)
	require.Equal(t, "Março 2025", flow.Points[4].Label)
	requireAmount(t, "0", flow.Points[0].In)
	requireAmount(t, "80", flow.Points[3].In)
	april := flow.Points[5]
	requireAmount(t, "200", april.In)
	requireAmount(t, "50", april.Out)
	requireAmount(t, "150", april.Net)
	requireAmount(t, "280", flow.TotalIn)
	requireAmount(t, "50", flow.TotalOut)
}

func TestCashFlowValidation(t *testing.T) {
	svc, _ := newTestService(t, ledgertest.New())
	_, err := svc.CashFlow(context.Background(), 1, day("2025-04-15"), -1)
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = svc.CashFlow(context.Background(), 1, day("2025-04-15"), maxCashFlowMonths+1)
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	flow, err := svc.CashFlow(context.Background(), 1, day("2025-04-15"), 1)
	require.NoError(t, err)
	require.Len(t, flow.Points, 1)
}

func TestServiceWithoutCache(t *testing.T) {
	store := ledgertest.New()
	store.AddAccount(ledger.Account{TenantID: 1, Name: "Itaú", OpeningBalance: dec("10.50"), Active: true})
	svc := NewService(store, nil, nil, nil)

	summary, err := svc.Summary(context.Background(), 1, day("2025-04-15"))
	require.NoError(t, err)
	requireAmount(t, "10.50", summary.TotalBalance)

	flow, err := svc.CashFlow(context.Background(), 1, day("2025-04-15"), 2)
	require.NoError(t, err)
	require.Equal(t, "2025-03", flow.Points[0].Label)
	require.Equal(t, "0.00", flow.Points[0].InLabel)
}

func TestNewFormatter(t *testing.T) {
	_, err := NewFormatter("not a locale!", "BRL")
	require.Error(t, err)
	_, err = NewFormatter("pt-BR", "XYZW")
	require.Error(t, err)

	en, err := NewFormatter("en-US", "USD")
	require.NoError(t, err)
	require.Equal(t, "January 2025", en.Month(2025, time.January))
	require.NotEmpty(t, en.Money(dec("1234.5")))

	fallback, err := NewFormatter("de", "EUR")
	require.NoError(t, err)
	require.Equal(t, "December 2025", fallback.Month(2025, time.December))
}

func TestFormatterMoney(t *testing.T) {
	br, err := NewFormatter("pt-BR", "BRL")
	require.NoError(t, err)
	require.Equal(t, "R$ 1.234,56", br.Money(dec("1234.56")))
	require.Equal(t, "R$ 0,00", br.Money(decimal.Zero))
	require.Equal(t, "R$ -0,07", br.Money(dec("-0.07")))
	require.Equal(t, "R$ 90.071.992.547.409,93", br.Money(dec("90071992547409.93")))

	en, err := NewFormatter("en-US", "USD")
	require.NoError(t, err)
	require.Equal(t, "$ 1,234.50", en.Money(dec("1234.5")))
	require.Equal(t, "$ 0.13", en.Money(dec("0.125")))
}
