// Package memstore is an in-memory store.Store for tests and local dry runs.
// It enforces primary keys, foreign keys (RESTRICT on delete) and per-table
// sequences, and runs transactions by copy-and-swap.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/flarebyte/datamove/internal/registry"
	"github.com/flarebyte/datamove/internal/store"
)

// Errors returned for constraint violations.
var (
	ErrUnknownTable = errors.New("unknown table")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrForeignKey   = errors.New("foreign key violation")
	ErrReadOnly     = errors.New("read-only transaction")
)

// Reference is a foreign key from Column to RefTable.RefColumn.
type Reference struct {
	Column    string
	RefTable  string
	RefColumn string
}

// TableDef declares one table.
type TableDef struct {
	Name       string
	Key        []string
	Sequence   string
	References []Reference
}

type state struct {
	rows map[string][]store.Record
	seq  map[string]store.SequenceState
}

func (s *state) clone() *state {
	c := &state{rows: make(map[string][]store.Record, len(s.rows)), seq: make(map[string]store.SequenceState, len(s.seq))}
	for t, rows := range s.rows {
		cp := make([]store.Record, len(rows))
		for i, r := range rows {
			cp[i] = copyRecord(r)
		}
		c.rows[t] = cp
	}
	for t, v := range s.seq {
		c.seq[t] = v
	}
	return c
}

// Store is safe for concurrent use. Transactions are serialized.
type Store struct {
	mu       sync.RWMutex
	defs     map[string]TableDef
	data     *state
	name     string
	faults   sync.Map
	accesses atomic.Int64
}

// New creates an empty store with the given tables.
func New(name string, defs ...TableDef) *Store {
	s := &Store{defs: map[string]TableDef{}, data: &state{rows: map[string][]store.Record{}, seq: map[string]store.SequenceState{}}, name: name}
	for _, d := range defs {
		s.defs[d.Name] = d
		s.data.rows[d.Name] = nil
		if d.Sequence != "" {
			s.data.seq[d.Name] = store.SequenceState{Last: 1}
		}
	}
	return s
}

// FromRegistry declares one table per registered model.
func FromRegistry(name string, reg *registry.Registry) *Store {
	var defs []TableDef
	for _, m := range reg.List() {
		d := TableDef{Name: m.Table, Key: m.PrimaryKey, Sequence: m.SequenceColumn}
		for _, fk := range m.ForeignKeys {
			target, err := reg.Resolve(fk.Model)
			if err != nil {
				continue
			}
			d.References = append(d.References, Reference{Column: fk.Column, RefTable: target.Table, RefColumn: target.PrimaryKey[0]})
		}
		defs = append(defs, d)
	}
	return New(name, defs...)
}

// FailOn makes every later op ("count", "existing", "select", "delete",
// "insert", "max", "sequence", "setval", "commit") on table return err.
// A nil err clears the fault.
func (s *Store) FailOn(op, table string, err error) {
	k := op + ":" + table
	if err == nil {
		s.faults.Delete(k)
		return
	}
	s.faults.Store(k, err)
}

// Accesses counts every call into the store, reads included.
func (s *Store) Accesses() int64 { return s.accesses.Load() }

// Rows returns a copy of a table's rows for assertions.
func (s *Store) Rows(table string) []store.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Record, 0, len(s.data.rows[table]))
	for _, r := range s.data.rows[table] {
		out = append(out, copyRecord(r))
	}
	return out
}

// SetSequenceState overwrites a sequence, e.g. to simulate drift.
func (s *Store) SetSequenceState(table string, st store.SequenceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.seq[table] = st
}

func (s *Store) Identity() string { return "memory://" + s.name }

func (s *Store) fault(op, table string) error {
	if v, ok := s.faults.Load(op + ":" + table); ok {
		return v.(error)
	}
	return nil
}

// InTx runs fn against a private copy and publishes it only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	s.accesses.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.data.clone()
	if err := fn(&view{s: s, st: work, writable: true}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fault("commit", ""); err != nil {
		return err
	}
	s.data = work
	return nil
}

// ReadTx runs fn against the current state with writes rejected.
func (s *Store) ReadTx(ctx context.Context, fn func(q store.Querier) error) error {
	s.accesses.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&view{s: s, st: s.data})
}

func (s *Store) read(fn func(v *view) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&view{s: s, st: s.data})
}

func (s *Store) write(fn func(v *view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.data.clone()
	if err := fn(&view{s: s, st: work, writable: true}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) Count(ctx context.Context, table string) (n int, err error) {
	err = s.read(func(v *view) error { n, err = v.Count(ctx, table); return err })
	return n, err
}

func (s *Store) CountExisting(ctx context.Context, table string, key []string, rows []store.Record) (n int, err error) {
	err = s.read(func(v *view) error { n, err = v.CountExisting(ctx, table, key, rows); return err })
	return n, err
}

func (s *Store) Select(ctx context.Context, q store.SelectQuery) (out []store.Record, err error) {
	err = s.read(func(v *view) error { out, err = v.Select(ctx, q); return err })
	return out, err
}

func (s *Store) DeleteAll(ctx context.Context, table string) (n int, err error) {
	err = s.write(func(v *view) error { n, err = v.DeleteAll(ctx, table); return err })
	return n, err
}

func (s *Store) Insert(ctx context.Context, table string, rows []store.Record, opt store.InsertOptions) (n int, err error) {
	err = s.write(func(v *view) error { n, err = v.Insert(ctx, table, rows, opt); return err })
	return n, err
}

func (s *Store) MaxValue(ctx context.Context, table, column string) (max int64, ok bool, err error) {
	err = s.read(func(v *view) error { max, ok, err = v.MaxValue(ctx, table, column); return err })
	return max, ok, err
}

func (s *Store) Sequence(ctx context.Context, table, column string) (st store.SequenceState, err error) {
	err = s.read(func(v *view) error { st, err = v.Sequence(ctx, table, column); return err })
	return st, err
}

func (s *Store) SetSequence(ctx context.Context, table, column string, value int64) error {
	return s.write(func(v *view) error { return v.SetSequence(ctx, table, column, value) })
}

// view is a Querier over one state snapshot.
type view struct {
	s        *Store
	st       *state
	writable bool
}

func (v *view) def(op, table string) (TableDef, error) {
	v.s.accesses.Add(1)
	d, ok := v.s.defs[table]
	if !ok {
		return TableDef{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if err := v.s.fault(op, table); err != nil {
		return TableDef{}, err
	}
	return d, nil
}

func (v *view) Count(ctx context.Context, table string) (int, error) {
	if _, err := v.def("count", table); err != nil {
		return 0, err
	}
	return len(v.st.rows[table]), nil
}

func (v *view) CountExisting(ctx context.Context, table string, key []string, rows []store.Record) (int, error) {
	if _, err := v.def("existing", table); err != nil {
		return 0, err
	}
	have := index(v.st.rows[table], key)
	n := 0
	for _, r := range rows {
		if have[keyOf(r, key)] {
			n++
		}
	}
	return n, nil
}

func (v *view) Select(ctx context.Context, q store.SelectQuery) ([]store.Record, error) {
	if _, err := v.def("select", q.Table); err != nil {
		return nil, err
	}
	src := v.st.rows[q.Table]
	out := make([]store.Record, 0, len(src))
	for _, r := range src {
		rec := project(r, q.Columns)
		for _, rel := range q.Relations {
			rec[rel.Field] = v.embed(r, rel)
		}
		out = append(out, rec)
	}
	if len(q.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, c := range q.OrderBy {
				if cmp := compare(out[i][c], out[j][c]); cmp != 0 {
					return cmp < 0
				}
			}
			return false
		})
	}
	return out, nil
}

func (v *view) embed(rec store.Record, rel store.Relation) any {
	local := fmt.Sprint(rec[rel.LocalKey])
	if !rel.Many() {
		if rec[rel.LocalKey] == nil {
			return nil
		}
		for _, r := range v.st.rows[rel.Table] {
			if fmt.Sprint(r[rel.RemoteKey]) == local {
				return project(r, rel.Columns)
			}
		}
		return nil
	}
	wanted := map[string]bool{}
	for _, j := range v.st.rows[rel.Through] {
		if fmt.Sprint(j[rel.ThroughLocal]) == local {
			wanted[fmt.Sprint(j[rel.ThroughRemote])] = true
		}
	}
	out := []any{}
	for _, r := range v.st.rows[rel.Table] {
		if wanted[fmt.Sprint(r[rel.RemoteKey])] {
			out = append(out, map[string]any(project(r, rel.Columns)))
		}
	}
	return out
}

func (v *view) DeleteAll(ctx context.Context, table string) (int, error) {
	if _, err := v.def("delete", table); err != nil {
		return 0, err
	}
	if !v.writable {
		return 0, ErrReadOnly
	}
	for name, d := range v.s.defs {
		if name == table {
			continue
		}
		for _, ref := range d.References {
			if ref.RefTable != table {
				continue
			}
			for _, r := range v.st.rows[name] {
				if r[ref.Column] != nil {
					return 0, fmt.Errorf("%w: %s.%s still references %s", ErrForeignKey, name, ref.Column, table)
				}
			}
		}
	}
	n := len(v.st.rows[table])
	v.st.rows[table] = nil
	return n, nil
}

func (v *view) Insert(ctx context.Context, table string, rows []store.Record, opt store.InsertOptions) (int, error) {
	d, err := v.def("insert", table)
	if err != nil {
		return 0, err
	}
	if !v.writable {
		return 0, ErrReadOnly
	}
	key := opt.Key
	if len(key) == 0 {
		key = d.Key
	}
	pos := make(map[string]int, len(v.st.rows[table]))
	for i, r := range v.st.rows[table] {
		pos[keyOf(r, key)] = i
	}
	written := make([]store.Record, 0, len(rows))
	for _, in := range rows {
		r := copyRecord(in)
		if d.Sequence != "" && r[d.Sequence] == nil {
			seq := v.st.seq[table]
			next := seq.NextValue()
			r[d.Sequence] = next
			v.st.seq[table] = store.SequenceState{Last: next, Called: true}
		}
		k := keyOf(r, key)
		if i, exists := pos[k]; exists {
			switch opt.OnConflict {
			case store.ConflictSkip:
				continue
			case store.ConflictUpdate:
				merged := copyRecord(v.st.rows[table][i])
				for c, val := range r {
					merged[c] = val
				}
				v.st.rows[table][i] = merged
				written = append(written, merged)
				continue
			default:
				return 0, fmt.Errorf("%w: %s (%s)", ErrDuplicateKey, table, strings.Join(key, ","))
			}
		}
		pos[k] = len(v.st.rows[table])
		v.st.rows[table] = append(v.st.rows[table], r)
		written = append(written, r)
	}
	// References are checked after the whole batch so self-references resolve.
	for _, ref := range d.References {
		targets := index(v.st.rows[ref.RefTable], []string{ref.RefColumn})
		for _, r := range written {
			if r[ref.Column] == nil {
				continue
			}
			if !targets[keyOf(r, []string{ref.Column})] {
				return 0, fmt.Errorf("%w: %s.%s=%v not in %s", ErrForeignKey, table, ref.Column, r[ref.Column], ref.RefTable)
			}
		}
	}
	return len(written), nil
}

func (v *view) MaxValue(ctx context.Context, table, column string) (int64, bool, error) {
	if _, err := v.def("max", table); err != nil {
		return 0, false, err
	}
	var max int64
	ok := false
	for _, r := range v.st.rows[table] {
		n, isInt := toInt64(r[column])
		if !isInt {
			continue
		}
		if !ok || n > max {
			max, ok = n, true
		}
	}
	return max, ok, nil
}

func (v *view) Sequence(ctx context.Context, table, column string) (store.SequenceState, error) {
	d, err := v.def("sequence", table)
	if err != nil {
		return store.SequenceState{}, err
	}
	if d.Sequence == "" || d.Sequence != column {
		return store.SequenceState{}, fmt.Errorf("%w: %s.%s", store.ErrNoSequence, table, column)
	}
	return v.st.seq[table], nil
}

func (v *view) SetSequence(ctx context.Context, table, column string, value int64) error {
	d, err := v.def("setval", table)
	if err != nil {
		return err
	}
	if !v.writable {
		return ErrReadOnly
	}
	if d.Sequence == "" || d.Sequence != column {
		return fmt.Errorf("%w: %s.%s", store.ErrNoSequence, table, column)
	}
	v.st.seq[table] = store.SequenceState{Last: value, Called: true}
	return nil
}

func copyRecord(r store.Record) store.Record {
	out := make(store.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func project(r store.Record, cols []string) store.Record {
	if cols == nil {
		return copyRecord(r)
	}
	out := make(store.Record, len(cols))
	for _, c := range cols {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func keyOf(r store.Record, key []string) string {
	parts := make([]string, len(key))
	for i, k := range key {
		parts[i] = fmt.Sprint(r[k])
	}
	return strings.Join(parts, "\x00")
}

func index(rows []store.Record, key []string) map[string]bool {
	out := make(map[string]bool, len(rows))
	for _, r := range rows {
		out[keyOf(r, key)] = true
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		return int64(x), x == float64(int64(x))
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func compare(a, b any) int {
	if x, ok := toInt64(a); ok {
		if y, ok := toInt64(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
