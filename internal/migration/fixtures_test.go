package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flarebyte/datamove/internal/dao/memstore"
	"github.com/flarebyte/datamove/internal/registry"
	"github.com/flarebyte/datamove/internal/store"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 5, 4, 10, 30, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, name string, opts ...Option) (*Engine, *memstore.Store) {
	t.Helper()
	reg := registry.Default()
	st := memstore.FromRegistry(name, reg)
	base := []Option{WithLogger(quietLogger()), WithClock(func() time.Time { return fixedNow })}
	return NewEngine(reg, st, append(base, opts...)...), st
}

// fixture is the two users, two tags, two cards, two links scenario.
func fixture() map[string][]map[string]any {
	return map[string][]map[string]any{
		"User": {
			{"id": 1, "email": "ada@example.org", "password_hash": "h1", "first_name": "Ada", "last_name": "L", "role": "admin", "is_active": true},
			{"id": 2, "email": "bob@example.org", "password_hash": "h2", "first_name": "Bob", "last_name": "M", "role": "user", "is_active": true},
		},
		"Tag": {
			{"id": 1, "name": "food"},
			{"id": 2, "name": "music"},
		},
		"Card": {
			{"id": 1, "name": "Bakery", "created_by": 1, "approved": true},
			{"id": 2, "name": "Jazz Club", "created_by": 2, "approved": true},
		},
		"card_tags": {
			{"card_id": 1, "tag_id": 1},
			{"card_id": 2, "tag_id": 2},
		},
	}
}

func seed(t *testing.T, st *memstore.Store, data map[string][]map[string]any) {
	t.Helper()
	ctx := context.Background()
	reg := registry.Default()
	ins, err := reg.InsertOrder(nil)
	require.NoError(t, err)
	for _, m := range ins {
		rows, ok := data[m.Name]
		if !ok {
			continue
		}
		recs := make([]store.Record, len(rows))
		for i, r := range rows {
			recs[i] = r
		}
		_, err := st.Insert(ctx, m.Table, recs, store.InsertOptions{})
		require.NoError(t, err, "seed %s", m.Name)
	}
}

func payloadFor(t *testing.T, data map[string][]map[string]any) io.Reader {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"export_metadata": map[string]any{"timestamp": fixedNow.Format(time.RFC3339), "version": FormatVersion, "source": "test"},
		"data":            data,
	})
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func snapshotReader(t *testing.T, snap *Snapshot) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, snap.Encode(&buf))
	return &buf
}

func counts(st *memstore.Store) map[string]int {
	out := map[string]int{}
	for _, m := range registry.Default().List() {
		out[m.Name] = len(st.Rows(m.Table))
	}
	return out
}

// failingReader fails the test if anything reads the payload.
type failingReader struct{ t *testing.T }

func (r failingReader) Read(p []byte) (int, error) {
	r.t.Fatalf("payload must not be read")
	return 0, io.EOF
}
