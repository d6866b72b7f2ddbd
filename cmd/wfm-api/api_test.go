package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/pipecd-crm/wfm/pkg/metrics"
	"github.com/pipecd-crm/wfm/pkg/persistence/file"
	"github.com/pipecd-crm/wfm/pkg/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	persistence, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	registry := prometheus.NewRegistry()

	return NewAPI(slog.Default(), persistence, registry, services.WithMetrics(metrics.New(registry))).App()
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t)

	code, body := get(t, app, "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Workflow Engine API", body)
}

func TestAPI_Probes(t *testing.T) {
	app := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz"} {
		code, body := get(t, app, path)
		assert.Equal(t, http.StatusOK, code, path)
		assert.Equal(t, "OK", body, path)
	}
}

func TestAPI_Metrics(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/workflows", strings.NewReader(`{"name":"Leads"}`)))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	code, body := get(t, app, "/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "wfm_workflow_lock_wait_seconds")
}

func TestAPI_GetWorkflows_Empty(t *testing.T) {
	app := setupTestApp(t)

	code, body := get(t, app, "/workflows")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "[]", body)
}
