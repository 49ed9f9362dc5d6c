package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportFullProfile(t *testing.T) {
	eng, st := newEngine(t, "full", WithSource("cityforge"))
	seed(t, st, fixture())
	before := st.Accesses()

	snap, err := eng.Export(context.Background(), ExportOptions{Include: []string{"Card", "User"}})
	require.NoError(t, err)
	assert.Greater(t, st.Accesses(), before)

	assert.Equal(t, FormatVersion, snap.Metadata.Version)
	assert.Equal(t, "cityforge", snap.Metadata.Source)
	assert.Equal(t, map[string]int{"Card": 2, "User": 2}, snap.Metadata.Counts)
	assert.Len(t, snap.Metadata.ID, 26)
	assert.Equal(t, "datamove_export_20250504T103000Z.json", snap.Filename())

	users := snap.Data["User"]
	require.Len(t, users, 2)
	assert.Contains(t, users[0], "password_hash")

	card := snap.Data["Card"][0]
	assert.Equal(t, []any{map[string]any{"id": 1, "name": "food"}}, card["tags"])
	creator, ok := card["creator"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, creator, "password_hash")
	assert.Equal(t, "ada@example.org", creator["email"])
}

func TestExportRedacted(t *testing.T) {
	eng, st := newEngine(t, "redacted")
	seed(t, st, fixture())

	snap, err := eng.Export(context.Background(), ExportOptions{Redact: true})
	require.NoError(t, err)
	assert.True(t, snap.Metadata.Redacted)
	assert.Equal(t, []string{"TokenBlacklist"}, snap.Metadata.Withheld)
	assert.NotContains(t, snap.Data, "TokenBlacklist")

	var buf bytes.Buffer
	require.NoError(t, snap.Encode(&buf))
	assert.NotContains(t, buf.String(), "password_hash")
	assert.NotContains(t, buf.String(), `"creator"`)

	for _, c := range snap.Data["Card"] {
		assert.NotContains(t, c, "tags")
	}
}

func TestExportIncludeExclude(t *testing.T) {
	eng, st := newEngine(t, "filter")
	seed(t, st, fixture())

	snap, err := eng.Export(context.Background(), ExportOptions{Exclude: []string{"Card", "card_tags"}})
	require.NoError(t, err)
	assert.NotContains(t, snap.Data, "Card")
	assert.NotContains(t, snap.Data, "card_tags")
	assert.Contains(t, snap.Data, "User")
	assert.Contains(t, snap.Data, "ForumReport")
	assert.Empty(t, snap.Data["ForumReport"])

	snap, err = eng.Export(context.Background(), ExportOptions{Include: []string{"Tag", "Card"}, Exclude: []string{"Card"}})
	require.NoError(t, err)
	assert.Len(t, snap.Data, 1)
}

func TestExportUnknownModelsReportedTogether(t *testing.T) {
	eng, st := newEngine(t, "unknown")
	_, err := eng.Export(context.Background(), ExportOptions{Include: []string{"User", "Cards"}, Exclude: []string{"Nope"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownModel)
	var me *ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, []string{"Cards", "Nope"}, me.Models)
	assert.Zero(t, st.Accesses())
}

func TestExportFailsWhole(t *testing.T) {
	eng, st := newEngine(t, "broken")
	seed(t, st, fixture())
	st.FailOn("select", "tags", errors.New("timeout"))

	snap, err := eng.Export(context.Background(), ExportOptions{})
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrStoreFailure)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Tag", se.Model)
}

func TestExportEmptyModelsAreArrays(t *testing.T) {
	eng, _ := newEngine(t, "empty")
	snap, err := eng.Export(context.Background(), ExportOptions{Include: []string{"Tag"}})
	require.NoError(t, err)
	b, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"Tag":[]`)
}

func TestCatalog(t *testing.T) {
	eng, st := newEngine(t, "catalog")
	seed(t, st, fixture())
	entries, err := eng.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 23)
	assert.Equal(t, CatalogEntry{Name: "User", Table: "users", Rank: 0, Count: 2}, entries[0])
	for _, e := range entries {
		if e.Name == "card_tags" {
			assert.Equal(t, 2, e.Count)
		}
	}
}
