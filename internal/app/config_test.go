package app

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "pretty", cfg.LogFormat)
	require.True(t, cfg.RoundingEpsilon.Equal(decimal.RequireFromString("0.01")))
	require.Equal(t, "9990", cfg.RoundingAccount)
	require.Equal(t, 30*time.Second, cfg.StockLockTTL)
	require.False(t, cfg.IsProduction())

	ledgerCfg := cfg.LedgerConfig()
	require.Equal(t, "9990", ledgerCfg.RoundingAccountCode)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LEDGER_ROUNDING_EPSILON", "0.05")
	t.Setenv("JOB_TENANTS", "1,2,9")
	t.Setenv("WORKER_CONCURRENCY", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, []int64{1, 2, 9}, cfg.JobTenants)
	require.Equal(t, 3, cfg.WorkerConcurrency)
	require.True(t, cfg.LedgerConfig().RoundingEpsilon.Equal(decimal.RequireFromString("0.05")))
	require.NotNil(t, NewLogger(cfg))
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"format":  {"LOG_FORMAT", "xml"},
		"level":   {"LOG_LEVEL", "loud"},
		"epsilon": {"LEDGER_ROUNDING_EPSILON", "-0.01"},
		"tenants": {"JOB_TENANTS", "0"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

type stubJobs struct{}

func (stubJobs) MountRoutes(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("jobs")) })
}

func TestRouterServesOpsEndpoints(t *testing.T) {
	metrics := observability.NewMetrics()
	ready := errors.New("redis down")
	router := NewRouter(RouterParams{
		Logger:     slog.Default(),
		Config:     &Config{AppEnv: "development"},
		Metrics:    metrics,
		JobHandler: stubJobs{},
		Ready:      func(*http.Request) error { return ready },
	})

	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	rr := get("/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	require.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)
	ready = nil
	require.Equal(t, http.StatusOK, get("/readyz").Code)

	require.Equal(t, "jobs", get("/jobs/health").Body.String())
	require.Contains(t, get("/metrics").Body.String(), `stockledger_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestRouterRateLimitsPerIP(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{}, RequestsPerMinute: 2})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
