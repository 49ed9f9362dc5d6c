// Package migration exports a registered dataset to a snapshot and imports
// snapshots back atomically, in dependency order, behind a safety gate.
package migration

import (
	"context"
	"log/slog"
	"time"

	"github.com/flarebyte/datamove/internal/registry"
	"github.com/flarebyte/datamove/internal/store"
)

// DefaultConfirmPhrase must be echoed back verbatim before an import runs.
const DefaultConfirmPhrase = "DELETE ALL DATA"

// Engine runs export, import and reconcile calls against one store.
type Engine struct {
	reg     *registry.Registry
	store   store.Store
	lock    store.Locker
	phrase  string
	source  string
	log     *slog.Logger
	now     func() time.Time
	observe func(Transition)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithLocker replaces the default in-process mutex.
func WithLocker(l store.Locker) Option { return func(e *Engine) { e.lock = l } }

// WithConfirmPhrase overrides DefaultConfirmPhrase. Empty keeps the default.
func WithConfirmPhrase(p string) Option {
	return func(e *Engine) {
		if p != "" {
			e.phrase = p
		}
	}
}

// WithSource names the dataset in snapshot metadata.
func WithSource(s string) Option { return func(e *Engine) { e.source = s } }

// WithClock sets the time source.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithObserver receives every import state transition.
func WithObserver(fn func(Transition)) Option { return func(e *Engine) { e.observe = fn } }

// NewEngine builds an engine over reg and st.
func NewEngine(reg *registry.Registry, st store.Store, opts ...Option) *Engine {
	e := &Engine{
		reg:    reg,
		store:  st,
		lock:   &MutexLocker{},
		phrase: DefaultConfirmPhrase,
		source: "database",
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Registry returns the model table the engine was built with.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// CatalogEntry is one model with its current row count.
type CatalogEntry struct {
	Name  string `json:"name"`
	Table string `json:"table"`
	Rank  int    `json:"rank"`
	Count int    `json:"count"`
}

// Catalog lists every registered model with its live row count.
func (e *Engine) Catalog(ctx context.Context) ([]CatalogEntry, error) {
	models := e.reg.List()
	out := make([]CatalogEntry, 0, len(models))
	err := e.store.ReadTx(ctx, func(q store.Querier) error {
		for _, m := range models {
			n, err := m.Ops.Count(ctx, q)
			if err != nil {
				return storeErr(m.Name, PhaseCount, err)
			}
			out = append(out, CatalogEntry{Name: m.Name, Table: m.Table, Rank: m.Rank, Count: n})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) unknownModels(names ...[]string) error {
	var bad []string
	for _, set := range names {
		bad = append(bad, e.reg.Unknown(set)...)
	}
	bad = dedupe(bad)
	if len(bad) == 0 {
		return nil
	}
	return &ModelError{Kind: ErrUnknownModel, Models: bad, Unknown: bad}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
