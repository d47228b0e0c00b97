package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore persists processed request keys per tenant and module.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

func validateKey(tenantID int64, module, key string) error {
	if tenantID == 0 {
		return errors.New("idempotency tenant required")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	return nil
}

// CheckAndInsert claims key for the tenant and module, failing with ErrIdempotencyConflict when already claimed.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, tenantID int64, module, key string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if err := validateKey(tenantID, module, key); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (tenant_id, module, key, created_at) VALUES ($1, $2, $3, $4)`,
		tenantID, module, key, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}

// Delete releases a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, tenantID int64, module, key string) error {
	if s == nil {
		return nil
	}
	if err := validateKey(tenantID, module, key); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE tenant_id = $1 AND module = $2 AND key = $3`, tenantID, module, key)
	return err
}
