package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/flarebyte/datamove/internal/registry"
	"github.com/flarebyte/datamove/internal/sanitize"
	"github.com/flarebyte/datamove/internal/store"
	"github.com/google/uuid"
)

// Mode selects how existing rows are treated.
type Mode string

const (
	// ModeReplaceAll deletes every row of each imported model first.
	ModeReplaceAll Mode = "replace-all"
	// ModeSkipExisting keeps existing rows and skips snapshot rows whose key exists.
	ModeSkipExisting Mode = "skip-existing"
	// ModeMerge keeps existing rows, overwrites those whose key is in the
	// snapshot and inserts the rest.
	ModeMerge Mode = "merge"
)

// ImportRequest is one import call.
type ImportRequest struct {
	Payload      io.Reader
	Confirm      string
	Include      []string
	DryRun       bool
	SkipExisting bool
	Merge        bool
}

// Plan is the ordered work an import performs.
type Plan struct {
	Models      []string `json:"models"`
	DeleteOrder []string `json:"delete_order"`
	InsertOrder []string `json:"insert_order"`
	Mode        Mode     `json:"mode"`
	DryRun      bool     `json:"dry_run"`
}

// ModelStats counts the rows an import touched for one model.
type ModelStats struct {
	Deleted  int `json:"deleted"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated,omitempty"`
	Skipped  int `json:"skipped,omitempty"`
}

// ImportResult is returned only when the import succeeded.
type ImportResult struct {
	RunID    string                `json:"run_id"`
	Plan     Plan                  `json:"plan"`
	Stats    map[string]ModelStats `json:"stats"`
	Metadata Metadata              `json:"metadata"`
	States   []State               `json:"states"`
}

// Import validates the request, then replaces, tops up or merges into the
// selected models in one transaction. Validation failures touch nothing in the store; a store
// failure rolls every model back.
func (e *Engine) Import(ctx context.Context, req ImportRequest) (res *ImportResult, err error) {
	defer observe("import", time.Now(), &err)
	r := &run{
		id:      uuid.NewString(),
		state:   StateValidating,
		log:     e.log,
		now:     e.now,
		observe: e.observe,
		history: []State{StateValidating},
	}

	if req.Confirm != e.phrase {
		return nil, r.fail(ctx, ErrConfirmationRequired)
	}
	if req.SkipExisting && req.Merge {
		return nil, r.fail(ctx, fmt.Errorf("%w: skip-existing and merge are exclusive", ErrInvalidMode))
	}
	p, err := decodePayload(req.Payload)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	names, err := e.selectModels(ctx, p, req.Include)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	unlock, err := e.lock.TryLock(ctx)
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			return nil, r.fail(ctx, ErrImportInProgress)
		}
		return nil, r.fail(ctx, storeErr("", PhaseLock, err))
	}
	defer unlock()

	r.to(ctx, StatePlanning)
	plan, del, ins, err := e.plan(names, req)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	rows := make(map[string][]store.Record, len(ins))
	stats := make(map[string]ModelStats, len(ins))
	var repeated []string
	for _, m := range ins {
		batch, dropped := dropRepeats(m.PrimaryKey, sanitize.New(m.RelationFields()).ApplyAll(p.data[m.Name]))
		if dropped > 0 && plan.Mode != ModeSkipExisting {
			repeated = append(repeated, m.Name)
		}
		rows[m.Name] = batch
		stats[m.Name] = ModelStats{Skipped: dropped}
	}
	if len(repeated) > 0 {
		return nil, r.fail(ctx, &ModelError{Kind: ErrMissingOrInvalidModel, Models: repeated})
	}

	if req.DryRun {
		if err := e.simulate(ctx, del, ins, rows, plan.Mode, stats); err != nil {
			return nil, r.fail(ctx, err)
		}
		r.to(ctx, StateDone)
		return e.result(r, plan, stats, p.meta), nil
	}

	err = e.store.InTx(ctx, func(q store.Querier) error {
		r.to(ctx, StateDeleting)
		if plan.Mode == ModeReplaceAll {
			for _, m := range del {
				n, err := m.Ops.Delete(ctx, q)
				if err != nil {
					return storeErr(m.Name, PhaseDelete, err)
				}
				st := stats[m.Name]
				st.Deleted = n
				stats[m.Name] = st
				e.log.Debug("deleted rows", "run_id", r.id, "model", m.Name, "rows", n)
			}
		}
		r.to(ctx, StateInserting)
		for _, m := range ins {
			batch := rows[m.Name]
			if len(batch) == 0 {
				continue
			}
			st := stats[m.Name]
			switch plan.Mode {
			case ModeMerge:
				existing, err := m.Ops.Existing(ctx, q, batch)
				if err != nil {
					return storeErr(m.Name, PhaseInsert, err)
				}
				if _, err := m.Ops.Insert(ctx, q, batch, store.ConflictUpdate); err != nil {
					return storeErr(m.Name, PhaseInsert, err)
				}
				st.Inserted = len(batch) - existing
				st.Updated = existing
			case ModeSkipExisting:
				n, err := m.Ops.Insert(ctx, q, batch, store.ConflictSkip)
				if err != nil {
					return storeErr(m.Name, PhaseInsert, err)
				}
				st.Inserted = n
				st.Skipped += len(batch) - n
			default:
				n, err := m.Ops.Insert(ctx, q, batch, store.ConflictFail)
				if err != nil {
					return storeErr(m.Name, PhaseInsert, err)
				}
				st.Inserted = n
			}
			stats[m.Name] = st
			e.log.Debug("inserted rows", "run_id", r.id, "model", m.Name, "inserted", st.Inserted, "updated", st.Updated, "skipped", st.Skipped)
		}
		r.to(ctx, StateCommitting)
		return nil
	})
	if err != nil {
		return nil, r.fail(ctx, storeErr("", PhaseCommit, err))
	}
	r.to(ctx, StateDone)
	for name, st := range stats {
		rowsTotal.WithLabelValues(name, "delete").Add(float64(st.Deleted))
		rowsTotal.WithLabelValues(name, "insert").Add(float64(st.Inserted))
		rowsTotal.WithLabelValues(name, "update").Add(float64(st.Updated))
		rowsTotal.WithLabelValues(name, "skip").Add(float64(st.Skipped))
	}
	return e.result(r, plan, stats, p.meta), nil
}

func (e *Engine) result(r *run, plan Plan, stats map[string]ModelStats, meta Metadata) *ImportResult {
	e.log.Info("import complete", "run_id", r.id, "models", len(stats), "mode", string(plan.Mode), "dry_run", plan.DryRun)
	return &ImportResult{RunID: r.id, Plan: plan, Stats: stats, Metadata: meta, States: r.history}
}

// selectModels resolves the models to import. With no include list, every
// registered model present in the snapshot is taken. Every bad name is
// reported in one error.
func (e *Engine) selectModels(ctx context.Context, p *payload, include []string) ([]string, error) {
	var bad, unknown []string
	var out []string
	if len(include) == 0 {
		for _, name := range e.reg.Names() {
			if _, present := p.data[name]; !present {
				continue
			}
			if p.malformed[name] {
				bad = append(bad, name)
				continue
			}
			out = append(out, name)
		}
		var extra []string
		for name := range p.data {
			if _, err := e.reg.Resolve(name); err != nil {
				extra = append(extra, name)
			}
		}
		if len(extra) > 0 {
			sort.Strings(extra)
			e.log.WarnContext(ctx, "ignoring unregistered snapshot sections", "sections", extra)
		}
	} else {
		for _, name := range dedupe(append([]string(nil), include...)) {
			if _, err := e.reg.Resolve(name); err != nil {
				bad = append(bad, name)
				unknown = append(unknown, name)
				continue
			}
			if !p.has(name) {
				bad = append(bad, name)
				continue
			}
			out = append(out, name)
		}
	}
	if len(bad) > 0 {
		return nil, &ModelError{Kind: ErrMissingOrInvalidModel, Models: bad, Unknown: unknown}
	}
	return out, nil
}

func (e *Engine) plan(names []string, req ImportRequest) (Plan, []registry.ModelSpec, []registry.ModelSpec, error) {
	plan := Plan{Mode: ModeReplaceAll, DryRun: req.DryRun}
	switch {
	case req.SkipExisting:
		plan.Mode = ModeSkipExisting
	case req.Merge:
		plan.Mode = ModeMerge
	}
	if len(names) == 0 {
		return plan, nil, nil, nil
	}
	ins, err := e.reg.InsertOrder(names)
	if err != nil {
		return plan, nil, nil, err
	}
	del, err := e.reg.DeleteOrder(names)
	if err != nil {
		return plan, nil, nil, err
	}
	for _, m := range ins {
		plan.Models = append(plan.Models, m.Name)
		plan.InsertOrder = append(plan.InsertOrder, m.Name)
	}
	for _, m := range del {
		plan.DeleteOrder = append(plan.DeleteOrder, m.Name)
	}
	return plan, del, ins, nil
}

// simulate projects the stats of a real run with count-only queries.
func (e *Engine) simulate(ctx context.Context, del, ins []registry.ModelSpec, rows map[string][]store.Record, mode Mode, stats map[string]ModelStats) error {
	return e.store.ReadTx(ctx, func(q store.Querier) error {
		if mode == ModeReplaceAll {
			for _, m := range del {
				n, err := m.Ops.Count(ctx, q)
				if err != nil {
					return storeErr(m.Name, PhaseCount, err)
				}
				st := stats[m.Name]
				st.Deleted = n
				stats[m.Name] = st
			}
		}
		for _, m := range ins {
			batch := rows[m.Name]
			st := stats[m.Name]
			st.Inserted = len(batch)
			if mode != ModeReplaceAll && len(batch) > 0 {
				existing, err := m.Ops.Existing(ctx, q, batch)
				if err != nil {
					return storeErr(m.Name, PhaseCount, err)
				}
				st.Inserted = len(batch) - existing
				if mode == ModeMerge {
					st.Updated = existing
				} else {
					st.Skipped += existing
				}
			}
			stats[m.Name] = st
		}
		return nil
	})
}

// dropRepeats keeps the first record of every primary key. Records missing a
// key value never count as repeats.
func dropRepeats(key []string, recs []store.Record) ([]store.Record, int) {
	if len(key) == 0 {
		return recs, 0
	}
	seen := make(map[string]bool, len(recs))
	out := recs[:0:0]
	for _, rec := range recs {
		k, ok := keyString(key, rec)
		if ok {
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		out = append(out, rec)
	}
	return out, len(recs) - len(out)
}

func keyString(key []string, rec store.Record) (string, bool) {
	parts := make([]string, len(key))
	for i, col := range key {
		v, ok := rec[col]
		if !ok || v == nil {
			return "", false
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x00"), true
}
