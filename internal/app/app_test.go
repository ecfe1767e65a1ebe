package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	ledgerhttp "github.com/odyssey-erp/odyssey-ledger/internal/ledger/http"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/memstore"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LEDGER_BALANCE_CACHE_TTL", "90s")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 90*time.Second, cfg.BalanceCacheTTL)
	require.Equal(t, "0 1 * * *", cfg.SweepCron)
	require.Equal(t, int64(1), cfg.SystemUserID)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("LEDGER_SWEEP_CONCURRENCY", "0")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("LEDGER_SWEEP_CONCURRENCY", "2")
	t.Setenv("LEDGER_SYSTEM_USER_ID", "abc")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestRouter(t *testing.T, db Pinger) (http.Handler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	store := memstore.New()
	engine := ledger.NewEngine(store, logger)
	cfg := &Config{AppRequestTimeout: time.Second, RateLimitPerMinute: 2}
	router := NewRouter(RouterParams{
		Logger:          logger,
		Config:          cfg,
		LedgerHandler:   ledgerhttp.NewHandler(logger, engine, mappings.NewResolver(store.MappingRepo())),
		AccountsHandler: accounts.NewHandler(logger, accounts.NewService(store.Accounts(), nil)),
		Metrics:         observability.NewMetrics(),
		Database:        db,
	})
	return router, &buf
}

func TestRouterHealthAndSecurityHeaders(t *testing.T) {
	router, logs := newTestRouter(t, pinger{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Contains(t, logs.String(), `"path":"/healthz"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "Not Found")
}

func TestRouterReadiness(t *testing.T) {
	router, _ := newTestRouter(t, pinger{err: errors.New("down")})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouterMountsLedgerAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ledger/mappings/active", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "no active account mapping")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), `route="/api/ledger/mappings/active"`))
}

func TestRouterRateLimits(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	var last int
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/accounts", nil))
		last = rr.Code
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	require.False(t, InTestMode())
}
