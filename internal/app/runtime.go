package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/provisions"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode reads the ODYSSEY_TEST_MODE flag once.
func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}

// balanceNamespace is the Redis key prefix of cached balances.
const balanceNamespace = "ledger:balances"

// Runtime holds the connections and services shared by the server, the
// worker and ledgerctl.
type Runtime struct {
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Metrics   *observability.Metrics
	Audit     *audit.Logger
	Timeline  *audit.Service
	Accounts  *accounts.Service
	Mappings  *mappings.Resolver
	Ledger    *ledger.Engine
	Scheduler *provisions.Scheduler
}

// Build connects to PostgreSQL and Redis and wires the ledger services.
// Redis is optional: when it is unreachable balances are read uncached and
// the sweep lock degrades to a no-op.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	pool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		return nil, err
	}
	client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis unavailable, running without cache", slog.Any("error", err))
		client = nil
	}

	rt := &Runtime{Pool: pool, Redis: client, Metrics: observability.NewMetrics()}
	auditRepo := audit.NewRepository(pool)
	rt.Audit = audit.NewLogger(auditRepo, logger)
	rt.Timeline = audit.NewService(auditRepo)

	balances := accounts.NewBalanceCache(cache.NewVersioned(client, balanceNamespace, cfg.BalanceCacheTTL))
	rt.Accounts = accounts.NewService(accounts.NewRepository(pool), balances)
	rt.Mappings = mappings.NewResolver(mappings.NewRepository(pool)).WithAuditor(rt.Audit)
	rt.Ledger = ledger.NewEngine(ledger.NewPgStore(pool), logger,
		ledger.WithAudit(rt.Audit),
		ledger.WithCache(balances),
		ledger.WithRecorder(rt.Metrics),
	)
	rt.Scheduler = provisions.NewScheduler(
		provisions.NewRepository(pool),
		rt.Ledger,
		cache.NewLocker(client),
		logger,
		cfg.SweepConcurrency,
	)
	return rt, nil
}

// Close releases the connections.
func (rt *Runtime) Close(logger *slog.Logger) {
	if rt == nil {
		return
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
}

// Ping checks PostgreSQL reachability.
func (rt *Runtime) Ping(ctx context.Context) error {
	if rt == nil || rt.Pool == nil {
		return fmt.Errorf("app: runtime not initialised")
	}
	return rt.Pool.Ping(ctx)
}
