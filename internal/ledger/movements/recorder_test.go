package movements

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/ledgertest"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var march = time.Date(2025, time.March, 10, 15, 30, 0, 0, time.UTC)

func seedAccount(store *ledgertest.Store, tenantID int64, name, balance string) ledger.Account {
	return store.AddAccount(ledger.Account{TenantID: tenantID, Name: name, OpeningBalance: dec(balance), Active: true})
}

func requireInvariant(t *testing.T, store *ledgertest.Store, tenantID, accountID int64) {
	t.Helper()
	ctx := context.Background()
	acc, err := store.GetAccount(ctx, tenantID, accountID, ledger.ActiveOnly)
	require.NoError(t, err)
	latest, err := store.LatestMovement(ctx, tenantID, accountID)
	if errors.Is(err, ledger.ErrNotFound) {
		require.True(t, acc.CurrentBalance.Equal(acc.OpeningBalance))
		return
	}
	require.NoError(t, err)
	require.True(t, acc.CurrentBalance.Equal(latest.BalanceAfter),
		"balance %s, latest snapshot %s", acc.CurrentBalance, latest.BalanceAfter)
}

func TestRecordSnapshots(t *testing.T) {
	store := ledgertest.New()
	recorder := NewRecorder(store, nil, nil, nil)
	ctx := context.Background()
	acc := seedAccount(store, 1, "Caixa", "1000")

	in, err := recorder.Record(ctx, RecordInput{TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementIn, Amount: dec("250.50"), Date: march, Description: "Venda"})
	require.NoError(t, err)
	require.Equal(t, ledger.DirectionIn, in.Direction)
	require.True(t, in.BalanceBefore.Equal(dec("1000")))
	require.True(t, in.BalanceAfter.Equal(dec("1250.50")))
	require.Equal(t, ledger.DateOnly(march), in.Date)

	out, err := recorder.Record(ctx, RecordInput{TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementOut, Amount: dec("50.50"), Date: march, Description: "Taxa"})
	require.NoError(t, err)
	require.Equal(t, ledger.DirectionOut, out.Direction)
	require.True(t, out.BalanceBefore.Equal(in.BalanceAfter))
	require.True(t, out.BalanceAfter.Equal(dec("1200")))

	requireInvariant(t, store, 1, acc.ID)
}

func TestRecordAllowsNegativeBalanceForPlainEntries(t *testing.T) {
	store := ledgertest.New()
	recorder := NewRecorder(store, nil, nil, nil)
	acc := seedAccount(store, 1, "Caixa", "10")

	mv, err := recorder.Record(context.Background(), RecordInput{TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementOut, Amount: dec("25"), Date: march, Description: "Saque"})
	require.NoError(t, err)
	require.True(t, mv.BalanceAfter.Equal(dec("-15")))
}

func TestRecordValidation(t *testing.T) {
	store := ledgertest.New()
	recorder := NewRecorder(store, nil, nil, nil)
	ctx := context.Background()
	acc := seedAccount(store, 1, "Caixa", "10")

	cases := map[string]RecordInput{
		"zero amount":      {TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementIn, Amount: decimal.Zero, Description: "x"},
		"negative amount":  {TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementIn, Amount: dec("-1"), Description: "x"},
		"unknown kind":     {TenantID: 1, AccountID: acc.ID, Kind: "estorno", Amount: dec("1"), Description: "x"},
		"blank":            {TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementIn, Amount: dec("1"), Description: "  "},
		"leg no direction": {TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementTransfer, Amount: dec("1"), Description: "x"},
		"wrong direction":  {TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementIn, Direction: ledger.DirectionOut, Amount: dec("1"), Description: "x"},
	}
	for name, input := range cases {
		_, err := recorder.Record(ctx, input)
		require.ErrorIs(t, err, ledger.ErrInvalidArgument, name)
	}

	_, err := recorder.Record(ctx, RecordInput{TenantID: 2, AccountID: acc.ID, Kind: ledger.MovementIn, Amount: dec("1"), Description: "x"})
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRecordRollsBackWhenBalanceUpdateFails(t *testing.T) {
	store := ledgertest.New()
	recorder := NewRecorder(store, nil, nil, nil)
	ctx := context.Background()
	acc := seedAccount(store, 1, "Caixa", "100")

	store.Fail("SetAccountBalance", errors.New("connection lost"))
	_, err := recorder.Record(ctx, RecordInput{TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementIn, Amount: dec("5"), Date: march, Description: "x"})
	require.Error(t, err)

	list, err := store.ListMovements(ctx, 1, ledger.MovementFilter{AccountID: acc.ID})
	require.NoError(t, err)
	require.Empty(t, list)
	requireInvariant(t, store, 1, acc.ID)
}

func TestConcurrentRecordsSerialise(t *testing.T) {
	store := ledgertest.New()
	recorder := NewRecorder(store, nil, nil, nil)
	ctx := context.Background()
	acc := seedAccount(store, 1, "Caixa", "0")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := ledger.MovementIn
			if i%2 == 1 {
				kind = ledger.MovementOut
			}
			_, err := recorder.Record(ctx, RecordInput{TenantID: 1, AccountID: acc.ID, Kind: kind, Amount: dec("3"), Date: march, Description: "x"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := store.GetAccount(ctx, 1, acc.ID, ledger.ActiveOnly)
	require.NoError(t, err)
	require.True(t, got.CurrentBalance.IsZero(), got.CurrentBalance.String())
	requireInvariant(t, store, 1, acc.ID)

	list, err := store.ListMovements(ctx, 1, ledger.MovementFilter{AccountID: acc.ID})
	require.NoError(t, err)
	require.Len(t, list, 50)
	// Newest first: every snapshot chains onto the one recorded before it.
	for i := 0; i < len(list)-1; i++ {
		require.True(t, list[i].BalanceBefore.Equal(list[i+1].BalanceAfter))
	}
}

func TestCreateManual(t *testing.T) {
	store := ledgertest.New()
	recorder := NewRecorder(store, nil, nil, nil)
	ctx := context.Background()
	acc := seedAccount(store, 1, "Caixa", "0")

	_, err := recorder.CreateManual(ctx, ManualInput{TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementTransfer, Amount: dec("1"), Date: march, Description: "x"})
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = recorder.CreateManual(ctx, ManualInput{TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementIn, Amount: dec("1"), Description: "x"})
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	mv, err := recorder.CreateManual(ctx, ManualInput{TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementIn, Amount: dec("1"), Date: march, Description: "Depósito"})
	require.NoError(t, err)
	require.Equal(t, "Depósito", mv.Description)
}

func TestListFilters(t *testing.T) {
	store := ledgertest.New()
	recorder := NewRecorder(store, nil, nil, nil)
	ctx := context.Background()
	a := seedAccount(store, 1, "A", "0")
	b := seedAccount(store, 1, "B", "0")

	for _, in := range []RecordInput{
		{TenantID: 1, AccountID: a.ID, Kind: ledger.MovementIn, Amount: dec("1"), Date: march, Description: "x"},
		{TenantID: 1, AccountID: a.ID, Kind: ledger.MovementOut, Amount: dec("1"), Date: march.AddDate(0, 1, 0), Description: "x"},
		{TenantID: 1, AccountID: b.ID, Kind: ledger.MovementIn, Amount: dec("1"), Date: march, Description: "x"},
	} {
		_, err := recorder.Record(ctx, in)
		require.NoError(t, err)
	}

	byAccount, err := recorder.List(ctx, 1, ledger.MovementFilter{AccountID: a.ID})
	require.NoError(t, err)
	require.Len(t, byAccount, 2)
	require.Equal(t, ledger.MovementOut, byAccount[0].Kind)

	byKind, err := recorder.List(ctx, 1, ledger.MovementFilter{Kind: ledger.MovementIn})
	require.NoError(t, err)
	require.Len(t, byKind, 2)

	byRange, err := recorder.List(ctx, 1, ledger.MovementFilter{From: march.AddDate(0, 0, 1)})
	require.NoError(t, err)
	require.Len(t, byRange, 1)

	_, err = recorder.List(ctx, 1, ledger.MovementFilter{Kind: "bogus"})
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
}

func TestSoftDeleteOnlyLatest(t *testing.T) {
	store := ledgertest.New()
	recorder := NewRecorder(store, nil, nil, nil)
	ctx := context.Background()
	acc := seedAccount(store, 1, "Caixa", "100")

	first, err := recorder.Record(ctx, RecordInput{TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementIn, Amount: dec("50"), Date: march, Description: "x"})
	require.NoError(t, err)
	second, err := recorder.Record(ctx, RecordInput{TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementOut, Amount: dec("20"), Date: march, Description: "x"})
	require.NoError(t, err)

	require.ErrorIs(t, recorder.SoftDelete(ctx, 1, first.ID), ledger.ErrConflict)

	require.NoError(t, recorder.SoftDelete(ctx, 1, second.ID))
	got, err := store.GetAccount(ctx, 1, acc.ID, ledger.ActiveOnly)
	require.NoError(t, err)
	require.True(t, got.CurrentBalance.Equal(dec("150")))
	requireInvariant(t, store, 1, acc.ID)

	require.NoError(t, recorder.SoftDelete(ctx, 1, first.ID))
	requireInvariant(t, store, 1, acc.ID)
	got, err = store.GetAccount(ctx, 1, acc.ID, ledger.ActiveOnly)
	require.NoError(t, err)
	require.True(t, got.CurrentBalance.Equal(dec("100")))

	_, err = recorder.Get(ctx, 1, first.ID)
	require.ErrorIs(t, err, ledger.ErrNotFound)
	audit, err := store.GetMovement(ctx, 1, first.ID, ledger.IncludeDeleted)
	require.NoError(t, err)
	require.NotNil(t, audit.DeletedAt)
}

func TestSoftDeleteRejectsSettlementMovements(t *testing.T) {
	store := ledgertest.New()
	recorder := NewRecorder(store, nil, nil, nil)
	ctx := context.Background()
	acc := seedAccount(store, 1, "Caixa", "100")

	mv, err := recorder.Record(ctx, RecordInput{
		TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementOut, Amount: dec("10"), Date: march, Description: "Pagamento",
		Source: &ledger.SourceRef{Kind: ledger.BillPayable, ID: 42},
	})
	require.NoError(t, err)
	require.ErrorIs(t, recorder.SoftDelete(ctx, 1, mv.ID), ledger.ErrConflict)
}

func TestSoftDeleteTransferLegsTogether(t *testing.T) {
	store := ledgertest.New()
	recorder := NewRecorder(store, nil, nil, nil)
	ctx := context.Background()
	a := seedAccount(store, 1, "A", "100")
	b := seedAccount(store, 1, "B", "0")
	transferID := uuid.New()

	var debit ledger.Movement
	err := store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		var err error
		debit, err = recorder.Apply(ctx, tx, RecordInput{TenantID: 1, AccountID: a.ID, Kind: ledger.MovementTransfer, Direction: ledger.DirectionOut,
			Amount: dec("40"), Date: march, Description: "t", CounterAccountID: &b.ID, TransferID: &transferID})
		if err != nil {
			return err
		}
		_, err = recorder.Apply(ctx, tx, RecordInput{TenantID: 1, AccountID: b.ID, Kind: ledger.MovementTransfer, Direction: ledger.DirectionIn,
			Amount: dec("40"), Date: march, Description: "t", CounterAccountID: &a.ID, TransferID: &transferID})
		return err
	})
	require.NoError(t, err)

	require.NoError(t, recorder.SoftDelete(ctx, 1, debit.ID))
	require.Empty(t, store.TransferLegs(1, transferID))

	gotA, err := store.GetAccount(ctx, 1, a.ID, ledger.ActiveOnly)
	require.NoError(t, err)
	gotB, err := store.GetAccount(ctx, 1, b.ID, ledger.ActiveOnly)
	require.NoError(t, err)
	require.True(t, gotA.CurrentBalance.Equal(dec("100")))
	require.True(t, gotB.CurrentBalance.Equal(dec("0")))
}

func TestVerifyDetectsDrift(t *testing.T) {
	store := ledgertest.New()
	recorder := NewRecorder(store, nil, nil, nil)
	ctx := context.Background()
	clean := seedAccount(store, 1, "Limpa", "100")
	_, err := recorder.Record(ctx, RecordInput{TenantID: 1, AccountID: clean.ID, Kind: ledger.MovementIn, Amount: dec("5"), Date: march, Description: "x"})
	require.NoError(t, err)

	drifted := store.AddAccount(ledger.Account{TenantID: 1, Name: "Torta", OpeningBalance: dec("10"), CurrentBalance: dec("12"), Active: true})

	check, err := recorder.Verify(ctx, 1, clean.ID)
	require.NoError(t, err)
	require.False(t, check.Drifted())
	require.NotZero(t, check.LatestMovementID)

	checks, err := recorder.VerifyTenant(ctx, 1)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	require.Equal(t, drifted.ID, checks[0].AccountID)
	require.True(t, checks[0].Expected.Equal(dec("10")))
}

// staleStore serves account reads from a snapshot taken before later movements.
type staleStore struct {
	*ledgertest.Store
	accounts []ledger.Account
}

func (s staleStore) GetAccount(_ context.Context, tenantID, id int64, _ ledger.Scope) (ledger.Account, error) {
	for _, acc := range s.accounts {
		if acc.TenantID == tenantID && acc.ID == id {
			return acc, nil
		}
	}
	return ledger.Account{}, ledger.NotFoundf("account %d not found", id)
}

func (s staleStore) ListAccounts(context.Context, int64, ledger.AccountFilter) ([]ledger.Account, error) {
	return s.accounts, nil
}

func TestVerifyReadsBalanceUnderLock(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	acc := seedAccount(store, 1, "Caixa", "100")
	snapshot, err := store.ListAccounts(ctx, 1, ledger.AccountFilter{})
	require.NoError(t, err)

	_, err = NewRecorder(store, nil, nil, nil).Record(ctx, RecordInput{TenantID: 1, AccountID: acc.ID, Kind: ledger.MovementIn, Amount: dec("40"), Date: march, Description: "Venda"})
	require.NoError(t, err)

	recorder := NewRecorder(staleStore{Store: store, accounts: snapshot}, nil, nil, nil)
	check, err := recorder.Verify(ctx, 1, acc.ID)
	require.NoError(t, err)
	require.False(t, check.Drifted())
	require.True(t, check.Stored.Equal(dec("140")), "stored %s", check.Stored)

	drifted, err := recorder.VerifyTenant(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, drifted)
}
