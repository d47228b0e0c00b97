package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	ledgerhttp "github.com/odyssey-erp/odyssey-ledger/internal/ledger/http"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(checks map[string]Pinger) http.Handler {
	cfg := &Config{AppEnv: "test"}
	return NewRouter(RouterParams{
		Config:        cfg,
		LedgerHandler: ledgerhttp.NewHandler(nil, ledgerhttp.Services{}, nil, ledgerhttp.Options{}),
		JobHandler:    jobs.NewHandler(nil, nil),
		Metrics:       observability.NewMetrics(),
		Readiness:     checks,
	})
}

func serve(router http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthAndSecureHeaders(t *testing.T) {
	rec := serve(newTestRouter(nil), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouterReadiness(t *testing.T) {
	up := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := serve(newTestRouter(map[string]Pinger{"postgres": up, "redis": up}), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"postgres":"up","redis":"up"}`, rec.Body.String())

	rec = serve(newTestRouter(map[string]Pinger{"postgres": up, "redis": down}), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"postgres":"up","redis":"down"}`, rec.Body.String())
}

func TestRouterMountsJobsAndMetrics(t *testing.T) {
	router := newTestRouter(nil)

	rec := serve(router, http.MethodGet, "/jobs/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"queue":"default"`)

	rec = serve(router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "ledger_http_requests_total"))
}

func TestRouterLedgerRoutesRequireTenant(t *testing.T) {
	rec := serve(newTestRouter(nil), http.MethodGet, "/api/v1/accounts", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
