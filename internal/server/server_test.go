package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flarebyte/datamove/internal/app"
	"github.com/flarebyte/datamove/internal/dao/memstore"
	"github.com/flarebyte/datamove/internal/migration"
	"github.com/flarebyte/datamove/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandler(t *testing.T) http.Handler {
	t.Helper()
	reg := registry.Default()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := app.New(migration.NewEngine(reg, memstore.FromRegistry(t.Name(), reg), migration.WithLogger(log)), log)
	return Handler(svc, Options{AdminToken: "tok", Reconcile: true, Log: log})
}

func get(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRoutes(t *testing.T) {
	h := newHandler(t)

	rec := get(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = get(t, h, http.MethodGet, "/api/admin/data/models", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"User"`)

	rec = get(t, h, http.MethodPost, "/migration.v1.MigrationService/Catalog", "{}")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Connect-Error-Code"))
	assert.Contains(t, rec.Body.String(), `"card_tags"`)
}

func TestPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.pid")
	require.NoError(t, writePID(path))
	assert.Error(t, writePID(path), "a second server must not overwrite the pid file")

	pid, err := ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	removePID(path)
	_, err = ReadPID(path)
	assert.Error(t, err)
}

func TestDefaultPIDPath(t *testing.T) {
	t.Setenv("DATAMOVE_HOME_DIR", t.TempDir())
	assert.Equal(t, "server.pid", filepath.Base(DefaultPIDPath()))
}
