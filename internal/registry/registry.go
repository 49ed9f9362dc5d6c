// Package registry holds the static table of migratable models and the
// dependency ordering derived from it.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned by Resolve for an unregistered model name.
var ErrNotFound = errors.New("model not registered")

// Registry is immutable once built and safe for concurrent use.
type Registry struct {
	models []ModelSpec
	index  map[string]int
}

// New validates the models and builds a registry. Models are kept in
// declaration order, which breaks ties between equal ranks.
func New(models ...ModelSpec) (*Registry, error) {
	r := &Registry{models: make([]ModelSpec, 0, len(models)), index: make(map[string]int, len(models))}
	for _, m := range models {
		if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Table) == "" {
			return nil, fmt.Errorf("registry: model name and table are required (name=%q)", m.Name)
		}
		if _, dup := r.index[m.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate model %q", m.Name)
		}
		if len(m.PrimaryKey) == 0 {
			return nil, fmt.Errorf("registry: model %q has no primary key", m.Name)
		}
		if !m.Ops.complete() {
			def := TableOps(m.Table, m.PrimaryKey)
			if m.Ops.Count == nil {
				m.Ops.Count = def.Count
			}
			if m.Ops.Existing == nil {
				m.Ops.Existing = def.Existing
			}
			if m.Ops.Delete == nil {
				m.Ops.Delete = def.Delete
			}
			if m.Ops.Insert == nil {
				m.Ops.Insert = def.Insert
			}
		}
		r.index[m.Name] = len(r.models)
		r.models = append(r.models, m)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNew is New for static tables; it panics on an invalid table.
func MustNew(models ...ModelSpec) *Registry {
	r, err := New(models...)
	if err != nil {
		panic(err)
	}
	return r
}

// validate enforces that no model references a model of strictly higher rank.
func (r *Registry) validate() error {
	for _, m := range r.models {
		for _, fk := range m.ForeignKeys {
			i, ok := r.index[fk.Model]
			if !ok {
				return fmt.Errorf("registry: %s.%s references unknown model %q", m.Name, fk.Column, fk.Model)
			}
			if target := r.models[i]; target.Rank > m.Rank {
				return fmt.Errorf("registry: %s (rank %d) references %s (rank %d) via %s",
					m.Name, m.Rank, target.Name, target.Rank, fk.Column)
			}
		}
	}
	return nil
}

// List returns every model in declaration order.
func (r *Registry) List() []ModelSpec {
	out := make([]ModelSpec, len(r.models))
	copy(out, r.models)
	return out
}

// Names returns every model name in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.models))
	for i, m := range r.models {
		out[i] = m.Name
	}
	return out
}

// Resolve looks up a model by its exact name.
func (r *Registry) Resolve(name string) (ModelSpec, error) {
	i, ok := r.index[name]
	if !ok {
		return ModelSpec{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r.models[i], nil
}

// Unknown returns the names that do not resolve, in input order without duplicates.
func (r *Registry) Unknown(names []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, n := range names {
		if _, ok := r.index[n]; ok || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// InsertOrder sorts names by ascending rank, ties by declaration order.
// An empty list selects every model.
func (r *Registry) InsertOrder(names []string) ([]ModelSpec, error) {
	idx, err := r.indices(names)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ma, mb := r.models[idx[a]], r.models[idx[b]]
		if ma.Rank != mb.Rank {
			return ma.Rank < mb.Rank
		}
		return idx[a] < idx[b]
	})
	out := make([]ModelSpec, len(idx))
	for i, j := range idx {
		out[i] = r.models[j]
	}
	return out, nil
}

// DeleteOrder is the exact reverse of InsertOrder for the same names.
func (r *Registry) DeleteOrder(names []string) ([]ModelSpec, error) {
	out, err := r.InsertOrder(names)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *Registry) indices(names []string) ([]int, error) {
	if len(names) == 0 {
		out := make([]int, len(r.models))
		for i := range r.models {
			out[i] = i
		}
		return out, nil
	}
	if unknown := r.Unknown(names); len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.Join(unknown, ", "))
	}
	seen := make(map[int]bool, len(names))
	out := make([]int, 0, len(names))
	for _, n := range names {
		i := r.index[n]
		if seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	return out, nil
}
