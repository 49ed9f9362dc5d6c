package migration

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/flarebyte/datamove/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func TestImportScenarioIntoEmptyStore(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "scenario")

	res, err := eng.Import(ctx, ImportRequest{Payload: payloadFor(t, fixture()), Confirm: DefaultConfirmPhrase})
	require.NoError(t, err)

	for _, name := range []string{"User", "Tag", "Card", "card_tags"} {
		assert.Equal(t, ModelStats{Deleted: 0, Inserted: 2}, res.Stats[name], name)
	}
	assert.Len(t, res.Stats, 4)
	assert.Less(t, indexOf(res.Plan.InsertOrder, "Card"), indexOf(res.Plan.InsertOrder, "card_tags"))
	assert.Less(t, indexOf(res.Plan.InsertOrder, "Tag"), indexOf(res.Plan.InsertOrder, "card_tags"))
	assert.Equal(t, 0, indexOf(res.Plan.DeleteOrder, "card_tags"))
	assert.Equal(t, ModeReplaceAll, res.Plan.Mode)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "test", res.Metadata.Source)
	assert.Equal(t, []State{StateValidating, StatePlanning, StateDeleting, StateInserting, StateCommitting, StateDone}, res.States)
	assert.Len(t, st.Rows("card_tags"), 2)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, srcStore := newEngine(t, "source")
	seed(t, srcStore, fixture())

	snap, err := src.Export(ctx, ExportOptions{})
	require.NoError(t, err)
	card := snap.Data["Card"][0]
	require.Contains(t, card, "tags")
	require.Contains(t, card, "creator")

	dst, dstStore := newEngine(t, "target")
	res, err := dst.Import(ctx, ImportRequest{Payload: snapshotReader(t, snap), Confirm: DefaultConfirmPhrase})
	require.NoError(t, err)
	assert.Equal(t, counts(srcStore), counts(dstStore))
	assert.Equal(t, 23, len(res.Stats))

	for _, row := range dstStore.Rows("cards") {
		assert.NotContains(t, row, "tags")
		assert.NotContains(t, row, "creator")
	}
	users := dstStore.Rows("users")
	require.Len(t, users, 2)
	assert.Contains(t, users[0], "password_hash")
}

func TestImportIsAtomic(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "atomic")
	seed(t, st, fixture())
	before := map[string]any{"users": st.Rows("users"), "tags": st.Rows("tags"), "cards": st.Rows("cards"), "card_tags": st.Rows("card_tags")}

	replacement := fixture()
	replacement["User"][0]["email"] = "changed@example.org"
	replacement["Tag"] = append(replacement["Tag"], map[string]any{"id": 3, "name": "new"})
	boom := errors.New("disk full")
	st.FailOn("insert", "card_tags", boom)

	res, err := eng.Import(ctx, ImportRequest{Payload: payloadFor(t, replacement), Confirm: DefaultConfirmPhrase})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.ErrorIs(t, err, boom)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "card_tags", se.Model)
	assert.Equal(t, PhaseInsert, se.Phase)

	after := map[string]any{"users": st.Rows("users"), "tags": st.Rows("tags"), "cards": st.Rows("cards"), "card_tags": st.Rows("card_tags")}
	assert.Equal(t, before, after)
}

func TestSubsetDeleteBlockedByReferencesRollsBack(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "subset")
	seed(t, st, fixture())

	_, err := eng.Import(ctx, ImportRequest{Payload: payloadFor(t, fixture()), Confirm: DefaultConfirmPhrase, Include: []string{"User"}})
	require.Error(t, err)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "User", se.Model)
	assert.Equal(t, PhaseDelete, se.Phase)
	assert.Len(t, st.Rows("users"), 2)
}

func TestWrongConfirmationTouchesNothing(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "confirm")
	var seen []Transition
	eng.observe = func(tr Transition) { seen = append(seen, tr) }

	for _, phrase := range []string{"", "delete all data", "DELETE ALL DATA ", "yes"} {
		_, err := eng.Import(ctx, ImportRequest{Payload: failingReader{t}, Confirm: phrase})
		assert.ErrorIs(t, err, ErrConfirmationRequired)
	}
	assert.Zero(t, st.Accesses())
	require.Len(t, seen, 4)
	assert.Equal(t, StateFailed, seen[0].To)
	assert.Equal(t, StateValidating, seen[0].From)
}

func TestCustomConfirmPhrase(t *testing.T) {
	eng, _ := newEngine(t, "phrase", WithConfirmPhrase("wipe it"))
	_, err := eng.Import(context.Background(), ImportRequest{Payload: payloadFor(t, fixture()), Confirm: DefaultConfirmPhrase})
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	_, err = eng.Import(context.Background(), ImportRequest{Payload: payloadFor(t, fixture()), Confirm: "wipe it"})
	assert.NoError(t, err)
}

func TestInvalidFormat(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "format")
	for _, body := range []string{
		``,
		`not json`,
		`[]`,
		`{"data":{}}`,
		`{"export_metadata":{}}`,
		`{"export_metadata":{},"data":[]}`,
		`{"export_metadata":"x","data":{}}`,
	} {
		_, err := eng.Import(ctx, ImportRequest{Payload: strings.NewReader(body), Confirm: DefaultConfirmPhrase})
		assert.ErrorIs(t, err, ErrInvalidFormat, "body %q", body)
	}
	assert.Zero(t, st.Accesses())
}

func TestMissingOrInvalidModelsReportedTogether(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "models")
	data := fixture()
	delete(data, "Tag")

	_, err := eng.Import(ctx, ImportRequest{Payload: payloadFor(t, data), Confirm: DefaultConfirmPhrase, Include: []string{"User", "Widget", "Tag", "Widget"}})
	require.Error(t, err)
	var me *ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, []string{"Widget", "Tag"}, me.Models)
	assert.ErrorIs(t, err, ErrMissingOrInvalidModel)
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = eng.Import(ctx, ImportRequest{Payload: payloadFor(t, data), Confirm: DefaultConfirmPhrase, Include: []string{"Tag"}})
	assert.ErrorIs(t, err, ErrMissingOrInvalidModel)
	assert.False(t, errors.Is(err, ErrUnknownModel))

	body := `{"export_metadata":{"version":"1.0"},"data":{"User":{"id":1},"Tag":[]}}`
	_, err = eng.Import(ctx, ImportRequest{Payload: strings.NewReader(body), Confirm: DefaultConfirmPhrase})
	require.ErrorAs(t, err, &me)
	assert.Equal(t, []string{"User"}, me.Models)
	assert.Zero(t, st.Accesses())
}

func TestDryRunMatchesRealRun(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "dry")
	seed(t, st, fixture())
	before := counts(st)

	incoming := fixture()
	incoming["User"] = append(incoming["User"], map[string]any{"id": 3, "email": "cy@example.org", "password_hash": "h3", "first_name": "Cy", "last_name": "N", "role": "user"})

	dry, err := eng.Import(ctx, ImportRequest{Payload: payloadFor(t, incoming), Confirm: DefaultConfirmPhrase, DryRun: true})
	require.NoError(t, err)
	assert.True(t, dry.Plan.DryRun)
	assert.Equal(t, before, counts(st))
	assert.Equal(t, []State{StateValidating, StatePlanning, StateDone}, dry.States)
	assert.Equal(t, ModelStats{Deleted: 2, Inserted: 3}, dry.Stats["User"])

	applied, err := eng.Import(ctx, ImportRequest{Payload: payloadFor(t, incoming), Confirm: DefaultConfirmPhrase})
	require.NoError(t, err)
	assert.Equal(t, dry.Stats, applied.Stats)
	assert.Len(t, st.Rows("users"), 3)
}

func TestSkipExisting(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "skip")
	seed(t, st, map[string][]map[string]any{"User": fixture()["User"][:1]})

	req := func(dry bool) ImportRequest {
		return ImportRequest{Payload: payloadFor(t, map[string][]map[string]any{"User": fixture()["User"]}), Confirm: DefaultConfirmPhrase, SkipExisting: true, DryRun: dry}
	}
	dry, err := eng.Import(ctx, req(true))
	require.NoError(t, err)
	assert.Equal(t, ModelStats{Inserted: 1, Skipped: 1}, dry.Stats["User"])

	res, err := eng.Import(ctx, req(false))
	require.NoError(t, err)
	assert.Equal(t, ModeSkipExisting, res.Plan.Mode)
	assert.Equal(t, ModelStats{Inserted: 1, Skipped: 1}, res.Stats["User"])
	assert.Len(t, st.Rows("users"), 2)
}

func TestRepeatedKeyRejectedInDryAndRealRuns(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name  string
		merge bool
	}{{"replace-all", false}, {"merge", true}} {
		t.Run(tc.name, func(t *testing.T) {
			eng, st := newEngine(t, "repeat-"+tc.name)
			tags := map[string][]map[string]any{"Tag": {{"id": 7, "name": "a"}, {"id": 7, "name": "b"}}}
			for _, dry := range []bool{true, false} {
				_, err := eng.Import(ctx, ImportRequest{Payload: payloadFor(t, tags), Confirm: DefaultConfirmPhrase, DryRun: dry, Merge: tc.merge})
				require.ErrorIs(t, err, ErrMissingOrInvalidModel, "dry run %v", dry)
				var me *ModelError
				require.ErrorAs(t, err, &me)
				assert.Equal(t, []string{"Tag"}, me.Models)
			}
			assert.Zero(t, st.Accesses())
			assert.Empty(t, st.Rows("tags"))
		})
	}
}

func TestSkipExistingCountsRepeatedKeys(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "skip-repeat")
	req := func(dry bool) ImportRequest {
		tags := map[string][]map[string]any{"Tag": {{"id": 7, "name": "a"}, {"id": 7, "name": "b"}}}
		return ImportRequest{Payload: payloadFor(t, tags), Confirm: DefaultConfirmPhrase, SkipExisting: true, DryRun: dry}
	}

	dry, err := eng.Import(ctx, req(true))
	require.NoError(t, err)
	res, err := eng.Import(ctx, req(false))
	require.NoError(t, err)
	assert.Equal(t, ModelStats{Inserted: 1, Skipped: 1}, dry.Stats["Tag"])
	assert.Equal(t, dry.Stats, res.Stats)

	rows := st.Rows("tags")
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0]["name"])
}

func TestRowsWithoutKeyAreNotRepeats(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "keyless")
	tags := map[string][]map[string]any{"Tag": {{"name": "a"}, {"name": "b"}}}

	res, err := eng.Import(ctx, ImportRequest{Payload: payloadFor(t, tags), Confirm: DefaultConfirmPhrase})
	require.NoError(t, err)
	assert.Equal(t, ModelStats{Inserted: 2}, res.Stats["Tag"])
	assert.Len(t, st.Rows("tags"), 2)
}

func TestDropRepeats(t *testing.T) {
	recs := []store.Record{
		{"card_id": 1, "tag_id": 1},
		{"card_id": 1, "tag_id": 2},
		{"card_id": 1, "tag_id": 1},
		{"card_id": nil, "tag_id": 1},
		{"card_id": nil, "tag_id": 1},
	}
	out, dropped := dropRepeats([]string{"card_id", "tag_id"}, recs)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, []store.Record{recs[0], recs[1], recs[3], recs[4]}, out)

	out, dropped = dropRepeats(nil, recs)
	assert.Zero(t, dropped)
	assert.Len(t, out, len(recs))
}

func TestMerge(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "merge")
	seed(t, st, fixture())

	req := func(dry bool) ImportRequest {
		users := fixture()["User"][:1]
		users[0]["email"] = "ada@cityforge.org"
		users = append(users, map[string]any{"id": 3, "email": "cy@example.org", "password_hash": "h3", "first_name": "Cy", "last_name": "N", "role": "user", "is_active": true})
		links := []map[string]any{{"card_id": 1, "tag_id": 1}, {"card_id": 1, "tag_id": 2}}
		return ImportRequest{
			Payload: payloadFor(t, map[string][]map[string]any{"User": users, "card_tags": links}),
			Confirm: DefaultConfirmPhrase,
			Merge:   true,
			DryRun:  dry,
		}
	}
	want := map[string]ModelStats{
		"User":      {Inserted: 1, Updated: 1},
		"card_tags": {Inserted: 1, Updated: 1},
	}

	dry, err := eng.Import(ctx, req(true))
	require.NoError(t, err)
	assert.Equal(t, want, dry.Stats)
	assert.Len(t, st.Rows("users"), 2)

	res, err := eng.Import(ctx, req(false))
	require.NoError(t, err)
	assert.Equal(t, ModeMerge, res.Plan.Mode)
	assert.Equal(t, want, res.Stats)

	users := st.Rows("users")
	require.Len(t, users, 3)
	emails := map[string]bool{}
	for _, u := range users {
		emails[u["email"].(string)] = true
	}
	assert.Equal(t, map[string]bool{"ada@cityforge.org": true, "bob@example.org": true, "cy@example.org": true}, emails)
	assert.Len(t, st.Rows("card_tags"), 3)
	assert.Len(t, st.Rows("cards"), 2)
}

func TestSkipExistingAndMergeAreExclusive(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "modes")

	_, err := eng.Import(ctx, ImportRequest{Payload: failingReader{t}, Confirm: DefaultConfirmPhrase, SkipExisting: true, Merge: true})
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.Zero(t, st.Accesses())
}

func TestConcurrentImportRejected(t *testing.T) {
	ctx := context.Background()
	lock := &MutexLocker{}
	eng, st := newEngine(t, "busy", WithLocker(lock))
	unlock, err := lock.TryLock(ctx)
	require.NoError(t, err)

	_, err = eng.Import(ctx, ImportRequest{Payload: payloadFor(t, fixture()), Confirm: DefaultConfirmPhrase})
	assert.ErrorIs(t, err, ErrImportInProgress)
	assert.Zero(t, st.Accesses())

	unlock()
	_, err = eng.Import(ctx, ImportRequest{Payload: payloadFor(t, fixture()), Confirm: DefaultConfirmPhrase})
	assert.NoError(t, err)
}

func TestParallelImportsSerialize(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t, "parallel")
	var wg sync.WaitGroup
	errs := make([]error, 8)
	payloads := make([]io.Reader, len(errs))
	for i := range payloads {
		payloads[i] = payloadFor(t, fixture())
	}
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Import(ctx, ImportRequest{Payload: payloads[i], Confirm: DefaultConfirmPhrase})
		}(i)
	}
	wg.Wait()
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrImportInProgress)
	}
	assert.GreaterOrEqual(t, ok, 1)
}

func TestLegacyRelationshipsSection(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "legacy")
	body := `{
	  "export_metadata": {"timestamp": "2024-01-01T00:00:00", "version": "1.0", "database": "cityforge"},
	  "data": {
	    "User": [{"id": 1, "email": "a@x", "password_hash": "h", "first_name": "A", "last_name": "B", "role": "user"}],
	    "Tag": [{"id": 5, "name": "t"}],
	    "Card": [{"id": 9, "name": "c", "created_by": 1, "tags": [{"id": 5, "name": "t"}], "creator": {"id": 1}}]
	  },
	  "relationships": {"card_tags": [{"card_id": 9, "tag_id": 5}]}
	}`
	res, err := eng.Import(ctx, ImportRequest{Payload: strings.NewReader(body), Confirm: DefaultConfirmPhrase})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats["card_tags"].Inserted)
	assert.Len(t, st.Rows("card_tags"), 1)
}

func TestUnregisteredSectionsIgnored(t *testing.T) {
	data := fixture()
	data["Legacy"] = []map[string]any{{"id": 1}}
	eng, _ := newEngine(t, "extra")
	res, err := eng.Import(context.Background(), ImportRequest{Payload: payloadFor(t, data), Confirm: DefaultConfirmPhrase})
	require.NoError(t, err)
	assert.NotContains(t, res.Stats, "Legacy")
}

func TestLockErrorsOtherThanContention(t *testing.T) {
	broken := errors.New("connection refused")
	eng, _ := newEngine(t, "lockerr", WithLocker(lockerFunc(func(ctx context.Context) (func(), error) { return nil, broken })))
	_, err := eng.Import(context.Background(), ImportRequest{Payload: payloadFor(t, fixture()), Confirm: DefaultConfirmPhrase})
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.ErrorIs(t, err, broken)
	assert.False(t, errors.Is(err, ErrImportInProgress))
}

type lockerFunc func(ctx context.Context) (func(), error)

func (f lockerFunc) TryLock(ctx context.Context) (func(), error) { return f(ctx) }

var _ store.Locker = lockerFunc(nil)
