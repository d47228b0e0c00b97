package app

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/alerts"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/dashboard"
	ledgerhttp "github.com/odyssey-erp/odyssey-ledger/internal/ledger/http"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/movements"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/recurring"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/settlement"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/transfers"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Ledger bundles the store and every ledger service built over it.
type Ledger struct {
	Store    *ledger.Store
	Services ledgerhttp.Services
	Cache    *dashboard.Cache
}

// NewLedger wires the ledger services against PostgreSQL and Redis. redisClient
// may be nil, which disables the dashboard cache.
func NewLedger(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, registerer prometheus.Registerer, logger *slog.Logger) (*Ledger, error) {
	store := ledger.NewStore(pool, ledger.StoreOptions{LockTimeout: cfg.Ledger.LockTimeout})
	metrics := ledger.NewMetrics(registerer)
	cache := dashboard.NewCache(redisClient, cfg.Ledger.DashboardCacheTTL, logger)
	formatter, err := dashboard.NewFormatter(cfg.Ledger.Locale, cfg.Ledger.Currency)
	if err != nil {
		return nil, fmt.Errorf("ledger formatter: %w", err)
	}

	recorder := movements.NewRecorder(store, cache, metrics, logger)
	return &Ledger{
		Store: store,
		Cache: cache,
		Services: ledgerhttp.Services{
			Accounts:  accounts.NewService(store, cache, logger),
			Movements: recorder,
			Transfers: transfers.NewService(store, recorder, metrics, logger),
			Bills: settlement.NewService(store, recorder, settlement.Config{
				Audit:    shared.NewAuditLogger(pool),
				Metrics:  metrics,
				Notifier: cache,
				Logger:   logger,
			}),
			Recurring: recurring.NewService(store, cache, logger),
			Alerts:    alerts.NewService(store, cache, logger),
			Dashboard: dashboard.NewService(store, cache, formatter, logger),
		},
	}, nil
}
