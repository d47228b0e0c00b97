package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	require.Equal(t, Pagination{Page: 1, PerPage: 20, Total: 45, TotalPages: 3}, p)
	require.Equal(t, 0, p.Offset())

	p = NewPagination(3, 1000, 0)
	require.Equal(t, MaxPerPage, p.PerPage)
	require.Equal(t, 2*MaxPerPage, p.Offset())
}

func TestTenantContext(t *testing.T) {
	_, ok := TenantFromContext(context.Background())
	require.False(t, ok)

	id, ok := TenantFromContext(ContextWithTenant(context.Background(), 42))
	require.True(t, ok)
	require.Equal(t, int64(42), id)

	_, ok = TenantFromContext(ContextWithTenant(context.Background(), 0))
	require.False(t, ok)
}

func TestAuditLogValidate(t *testing.T) {
	require.Error(t, AuditLog{Action: "settle", Entity: "payable", EntityID: "1"}.Validate())
	require.Error(t, AuditLog{TenantID: 1, Entity: "payable", EntityID: "1"}.Validate())
	require.NoError(t, AuditLog{TenantID: 1, Action: "settle", Entity: "payable", EntityID: "1"}.Validate())
}

func TestIdempotencyKeyValidation(t *testing.T) {
	require.Error(t, validateKey(0, "ledger.transfer", "k"))
	require.Error(t, validateKey(1, "", "k"))
	require.Error(t, validateKey(1, "ledger.transfer", ""))
	require.NoError(t, validateKey(1, "ledger.transfer", "k"))

	var store *IdempotencyStore
	require.Error(t, store.CheckAndInsert(context.Background(), 1, "ledger.transfer", "k"))
	require.NoError(t, store.Delete(context.Background(), 1, "ledger.transfer", "k"))
}
