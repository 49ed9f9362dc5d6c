package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/flarebyte/datamove/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultFor(results []ReconcileResult, model string) (ReconcileResult, bool) {
	for _, r := range results {
		if r.Model == model {
			return r, true
		}
	}
	return ReconcileResult{}, false
}

func TestReconcileAfterImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "reconcile")
	_, err := eng.Import(ctx, ImportRequest{Payload: payloadFor(t, fixture()), Confirm: DefaultConfirmPhrase})
	require.NoError(t, err)

	first, err := eng.Reconcile(ctx, nil)
	require.NoError(t, err)
	_, hasLinks := resultFor(first, "card_tags")
	assert.False(t, hasLinks, "models without a sequence are skipped by default")

	users, ok := resultFor(first, "User")
	require.True(t, ok)
	assert.True(t, users.Corrected)
	assert.EqualValues(t, 2, users.PriorMaxID)
	assert.EqualValues(t, 1, users.PriorSequenceValue)
	assert.Empty(t, users.Error)

	forum, ok := resultFor(first, "ForumPost")
	require.True(t, ok)
	assert.False(t, forum.Corrected, "empty tables need no correction")

	seq, err := st.Sequence(ctx, "users", "id")
	require.NoError(t, err)
	assert.EqualValues(t, 3, seq.NextValue())

	second, err := eng.Reconcile(ctx, nil)
	require.NoError(t, err)
	for _, r := range second {
		assert.False(t, r.Corrected, r.Model)
	}

	// new rows without explicit ids no longer collide
	_, err = st.Insert(ctx, "users", []store.Record{{"email": "new@example.org"}}, store.InsertOptions{})
	assert.NoError(t, err)
}

func TestReconcileSequenceAhead(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "ahead")
	seed(t, st, fixture())
	st.SetSequenceState("tags", store.SequenceState{Last: 50, Called: true})

	res, err := eng.Reconcile(ctx, []string{"Tag"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.False(t, res[0].Corrected)
	assert.EqualValues(t, 51, res[0].PriorSequenceValue)
}

func TestReconcileRecordsPerModelFailures(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, "partial")
	seed(t, st, fixture())
	st.FailOn("max", "tags", errors.New("permission denied"))

	res, err := eng.Reconcile(ctx, []string{"card_tags", "Tag", "User"})
	require.NoError(t, err)
	require.Len(t, res, 3)

	links, _ := resultFor(res, "card_tags")
	assert.Contains(t, links.Error, store.ErrNoSequence.Error())
	tags, _ := resultFor(res, "Tag")
	assert.Contains(t, tags.Error, "permission denied")
	users, _ := resultFor(res, "User")
	assert.Empty(t, users.Error)
	assert.True(t, users.Corrected)
}

func TestReconcileUnknownModel(t *testing.T) {
	eng, _ := newEngine(t, "unknown-seq")
	_, err := eng.Reconcile(context.Background(), []string{"User", "Ghost"})
	assert.ErrorIs(t, err, ErrUnknownModel)
}
