package server_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultlens/faultlens/internal/config"
	"github.com/faultlens/faultlens/internal/core"
	"github.com/faultlens/faultlens/internal/core/engine"
	"github.com/faultlens/faultlens/internal/metrics"
	"github.com/faultlens/faultlens/internal/observability"
	"github.com/faultlens/faultlens/internal/server"
	"github.com/faultlens/faultlens/internal/server/handlers"
)

// cleanupMetrics tears down global telemetry state so each test starts clean.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		_ = observability.StopMetrics()
	})
}

// isPermissionError normalizes OS-specific permission errors so sandboxes
// that forbid loopback sockets skip instead of fail.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	cleanupMetrics(t)
}

type explainerFunc func() (string, error)

func (f explainerFunc) Explain(context.Context, core.ExplainRequest) (string, error) {
	return f()
}

func startServer(t *testing.T, api *handlers.AnalysisAPI) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := server.New(config.ServerConfig{Host: "127.0.0.1"}, api)

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func TestAnalysisMetricsIntegration(t *testing.T) {
	observability.InitServerLogger("test", "info")
	initMetricsOrSkip(t)
	handlers.InitHealthManager("test")

	knowledge := &engine.KnowledgeBase{}
	limiter := &engine.UsageLimiter{}
	api := &handlers.AnalysisAPI{
		Analyzer: &engine.Analyzer{
			Knowledge: knowledge,
			Limiter:   limiter,
			Explainer: explainerFunc(func() (string, error) { return "- . Error: ReferenceError", nil }),
		},
		Knowledge:  knowledge,
		Usage:      limiter,
		OnAnalysis: metrics.RecordAnalysis,
	}
	ts, client := startServer(t, api)

	const numRequests = 20
	const numWorkers = 4

	requests := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requests <- i
	}
	close(requests)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for n := range requests {
				var resp *http.Response
				var err error
				if n%2 == 0 {
					resp, err = client.Post(ts.URL+"/v1/analyze", "application/json",
						strings.NewReader(`{"context":"ReferenceError: y is not defined","mode":"execution"}`))
				} else {
					resp, err = client.Get(ts.URL + "/health")
				}
				if err == nil {
					_ = resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	resp, err := client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	content := string(body)
	assert.Contains(t, content, "http_requests_total")
	assert.Contains(t, content, "faultlens_analyses_total")
	assert.True(t, elapsed < 5*time.Second, "load should complete in reasonable time")

	entries := knowledge.Entries(t.Context())
	require.Len(t, entries, 1, "concurrent identical errors must record one signature")
}

func TestMetricsEndpointWithTelemetryDisabled(t *testing.T) {
	observability.InitServerLogger("test", "info")

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	ts, client := startServer(t, nil)

	resp, err := client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
