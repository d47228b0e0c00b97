package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, Kind(""), KindOf(nil))
	require.Equal(t, KindInvalidArgument, KindOf(Invalidf("amount %s", "-1")))
	require.Equal(t, KindNotFound, KindOf(NotFoundf("account %d", 7)))
	require.Equal(t, KindConflict, KindOf(Conflictf("busy")))
	require.Equal(t, KindAlreadySettled, KindOf(fmt.Errorf("payable 4: %w", ErrAlreadySettled)))
	require.Equal(t, KindInsufficientFunds, KindOf(fmt.Errorf("wrap: %w", ErrInsufficientFunds)))
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestInternalKeepsDomainErrors(t *testing.T) {
	notFound := NotFoundf("bill %d", 1)
	require.Same(t, notFound, Internal("load", notFound))

	wrapped := Internal("load", errors.New("connection reset"))
	require.ErrorIs(t, wrapped, ErrInternal)
	require.Contains(t, wrapped.Error(), "load")
	require.Nil(t, Internal("noop", nil))
}

func TestTranslateDriverErrors(t *testing.T) {
	require.ErrorIs(t, translate("account 1", pgx.ErrNoRows), ErrNotFound)

	dup := &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "payables_recurring_competence_uidx"}
	err := translate("insert payables", dup)
	require.ErrorIs(t, err, ErrConflict)
	require.Contains(t, err.Error(), "payables_recurring_competence_uidx")

	lock := &pgconn.PgError{Code: pgLockNotAvailable}
	require.ErrorIs(t, translate("account 1", lock), ErrInternal)

	require.ErrorIs(t, translate("x", errors.New("boom")), ErrInternal)
	require.NoError(t, translate("x", nil))
}

func TestWhereBuilder(t *testing.T) {
	w := whereBuilder{}
	w.add("tenant_id = ?", int64(1))
	w.raw("deleted_at IS NULL")
	w.add("kind = ?", "saida")
	limit := w.next(10)

	require.Equal(t, "tenant_id = $1 AND deleted_at IS NULL AND kind = $2", w.String())
	require.Equal(t, "$3", limit)
	require.Len(t, w.args, 3)
}
