package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation   = "23505"
	pgLockNotAvailable  = "55P03"
	pgDeadlockDetected  = "40P01"
	pgSerializationFail = "40001"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// StoreOptions tunes the PostgreSQL store.
type StoreOptions struct {
	// LockTimeout bounds how long a transaction waits for a row lock. Zero keeps the server default.
	LockTimeout time.Duration
}

// Store implements Repository on PostgreSQL.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

var (
	_ Repository   = (*Store)(nil)
	_ TxRepository = (*pgTx)(nil)
)

// NewStore constructs a Store over pool.
func NewStore(pool *pgxpool.Pool, opts StoreOptions) *Store {
	return &Store{pool: pool, lockTimeout: opts.LockTimeout}
}

type pgTx struct {
	q querier
}

// WithTx runs fn in a read-committed transaction. Balance reads rely on explicit
// SELECT ... FOR UPDATE locks, which always return the latest committed row.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Internal("begin tx", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if s.lockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			return Internal("set lock timeout", err)
		}
	}

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return Internal("commit tx", err)
	}
	return nil
}

// translate converts driver errors into ledger error kinds.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFoundf("%s", op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return Conflictf("%s: duplicate %s", op, pgErr.ConstraintName)
		case pgLockNotAvailable:
			return fmt.Errorf("%w: %s: lock wait timed out", ErrInternal, op)
		case pgDeadlockDetected, pgSerializationFail:
			return fmt.Errorf("%w: %s: concurrent update, retry", ErrInternal, op)
		}
	}
	return Internal(op, err)
}

func scopeClause(scope Scope, column string) string {
	if scope == IncludeDeleted {
		return "TRUE"
	}
	return column + " IS NULL"
}

// whereBuilder collects AND-ed predicates with positional arguments.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereBuilder) raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return "TRUE"
	}
	return strings.Join(w.clauses, " AND ")
}

func (w *whereBuilder) next(arg any) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

func collectTenants(ctx context.Context, q querier, query string) ([]int64, error) {
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
