package migration

import (
	"context"
	"time"

	"github.com/flarebyte/datamove/internal/registry"
	"github.com/flarebyte/datamove/internal/store"
	"github.com/oklog/ulid/v2"
)

// ExportOptions selects models and the export profile.
type ExportOptions struct {
	// Include limits the export to these models; empty means every model.
	Include []string
	// Exclude drops models after Include is applied.
	Exclude []string
	// Redact applies the column allow-lists, drops relation graphs and
	// withholds sensitive models.
	Redact bool
}

// Export reads every selected model into a snapshot. It never writes, and
// any failing model query fails the whole export.
func (e *Engine) Export(ctx context.Context, opt ExportOptions) (snap *Snapshot, err error) {
	defer observe("export", time.Now(), &err)
	if err := e.unknownModels(opt.Include, opt.Exclude); err != nil {
		return nil, err
	}
	excluded := map[string]bool{}
	for _, n := range opt.Exclude {
		excluded[n] = true
	}
	models, err := e.reg.InsertOrder(opt.Include)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	snap = &Snapshot{
		Metadata: Metadata{
			ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
			Timestamp: now.Format(time.RFC3339Nano),
			Version:   FormatVersion,
			Source:    e.source,
			Redacted:  opt.Redact,
			Counts:    map[string]int{},
		},
		Data: map[string][]store.Record{},
	}
	err = e.store.ReadTx(ctx, func(q store.Querier) error {
		for _, m := range models {
			if excluded[m.Name] {
				continue
			}
			if opt.Redact && m.Export.Withheld {
				snap.Metadata.Withheld = append(snap.Metadata.Withheld, m.Name)
				continue
			}
			rows, err := q.Select(ctx, selectQuery(m, opt.Redact))
			if err != nil {
				return storeErr(m.Name, PhaseExport, err)
			}
			if rows == nil {
				rows = []store.Record{}
			}
			snap.Data[m.Name] = rows
			snap.Metadata.Counts[m.Name] = len(rows)
			rowsTotal.WithLabelValues(m.Name, "export").Add(float64(len(rows)))
		}
		return nil
	})
	if err != nil {
		e.log.Error("export failed", "error", err)
		return nil, err
	}
	e.log.Info("export complete", "id", snap.Metadata.ID, "models", len(snap.Data), "redacted", opt.Redact)
	return snap, nil
}

// selectQuery builds the read for one model. Relations are embedded only in the
// full profile, each with its own column allow-list.
func selectQuery(m registry.ModelSpec, redact bool) store.SelectQuery {
	q := store.SelectQuery{Table: m.Table, OrderBy: m.PrimaryKey}
	if redact {
		q.Columns = m.Export.Columns
		return q
	}
	q.Relations = m.Export.Relations
	return q
}
