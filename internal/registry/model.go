package registry

import (
	"context"

	"github.com/flarebyte/datamove/internal/store"
)

// ForeignKey is one outgoing reference from a model column.
type ForeignKey struct {
	Column string
	Model  string
}

// Profile controls how a model is read for export.
type Profile struct {
	// Columns is the redacted allow-list. Nil keeps every column.
	Columns []string
	// Relations are embedded only in full (unredacted) exports.
	Relations []store.Relation
	// Withheld models are left out of redacted exports entirely.
	Withheld bool
}

// Ops is the per-model function table the import engine dispatches through.
type Ops struct {
	Count    func(ctx context.Context, q store.Querier) (int, error)
	Existing func(ctx context.Context, q store.Querier, rows []store.Record) (int, error)
	Delete   func(ctx context.Context, q store.Querier) (int, error)
	Insert   func(ctx context.Context, q store.Querier, rows []store.Record, onConflict store.Conflict) (int, error)
}

// ModelSpec describes one exportable/importable entity.
type ModelSpec struct {
	Name  string
	Table string
	// Rank orders models by dependency: lower ranks are inserted first and deleted last.
	Rank           int
	PrimaryKey     []string
	SequenceColumn string
	ForeignKeys    []ForeignKey
	Export         Profile
	Ops            Ops
}

// RelationFields lists the record keys that carry embedded relation graphs.
func (m ModelSpec) RelationFields() []string {
	out := make([]string, 0, len(m.Export.Relations))
	for _, r := range m.Export.Relations {
		out = append(out, r.Field)
	}
	return out
}

// TableOps builds the default function table for a plain table.
func TableOps(table string, key []string) Ops {
	return Ops{
		Count: func(ctx context.Context, q store.Querier) (int, error) {
			return q.Count(ctx, table)
		},
		Existing: func(ctx context.Context, q store.Querier, rows []store.Record) (int, error) {
			return q.CountExisting(ctx, table, key, rows)
		},
		Delete: func(ctx context.Context, q store.Querier) (int, error) {
			return q.DeleteAll(ctx, table)
		},
		Insert: func(ctx context.Context, q store.Querier, rows []store.Record, onConflict store.Conflict) (int, error) {
			return q.Insert(ctx, table, rows, store.InsertOptions{OnConflict: onConflict, Key: key})
		},
	}
}

func (o Ops) complete() bool {
	return o.Count != nil && o.Existing != nil && o.Delete != nil && o.Insert != nil
}
