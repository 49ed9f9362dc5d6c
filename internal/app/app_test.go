package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/flarebyte/datamove/internal/dao/memstore"
	"github.com/flarebyte/datamove/internal/migration"
	"github.com/flarebyte/datamove/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	reg := registry.Default()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := migration.NewEngine(reg, memstore.FromRegistry(t.Name(), reg), migration.WithLogger(log))
	return New(eng, log)
}

func snapshot(t *testing.T) io.Reader {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"export_metadata": map[string]any{"timestamp": "2025-05-04T10:30:00Z", "version": "1.0"},
		"data": map[string]any{
			"User": []map[string]any{
				{"id": 10, "email": "ada@example.org", "password_hash": "h", "first_name": "Ada", "last_name": "L", "role": "admin"},
			},
			"Tag":       []map[string]any{{"id": 4, "name": "food"}},
			"card_tags": []map[string]any{},
		},
	})
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func TestImportReconcilesWrittenModels(t *testing.T) {
	a := newTestApp(t)
	out, err := a.Import(context.Background(), migration.ImportRequest{
		Payload: snapshot(t), Confirm: migration.DefaultConfirmPhrase,
	}, true)
	require.NoError(t, err)
	require.Len(t, out.Reconcile, 2, "card_tags has no sequence and is not reconciled")
	for _, r := range out.Reconcile {
		assert.True(t, r.Corrected, r.Model)
		assert.Empty(t, r.Error)
	}

	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"run_id"`)
	assert.Contains(t, string(b), `"reconcile"`)
}

func TestImportWithoutReconcile(t *testing.T) {
	a := newTestApp(t)
	out, err := a.Import(context.Background(), migration.ImportRequest{
		Payload: snapshot(t), Confirm: migration.DefaultConfirmPhrase,
	}, false)
	require.NoError(t, err)
	assert.Nil(t, out.Reconcile)

	res, err := a.Reconcile(context.Background(), []string{"User"})
	require.NoError(t, err)
	assert.True(t, res[0].Corrected)
}

func TestDryRunSkipsReconcile(t *testing.T) {
	a := newTestApp(t)
	out, err := a.Import(context.Background(), migration.ImportRequest{
		Payload: snapshot(t), Confirm: migration.DefaultConfirmPhrase, DryRun: true,
	}, true)
	require.NoError(t, err)
	assert.True(t, out.Plan.DryRun)
	assert.Nil(t, out.Reconcile)
}

func TestImportErrorPassesThrough(t *testing.T) {
	a := newTestApp(t)
	_, err := a.Import(context.Background(), migration.ImportRequest{Payload: snapshot(t), Confirm: "yes"}, true)
	assert.ErrorIs(t, err, migration.ErrConfirmationRequired)
}
