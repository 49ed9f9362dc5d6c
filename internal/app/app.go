// Package app wires the migration engine to its store, locks and config, and
// exposes the operations every transport serves.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flarebyte/datamove/internal/config"
	pgdao "github.com/flarebyte/datamove/internal/dao/postgres"
	"github.com/flarebyte/datamove/internal/migration"
	"github.com/flarebyte/datamove/internal/registry"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service is what the HTTP, gRPC and CLI front ends call.
type Service interface {
	Catalog(ctx context.Context) ([]migration.CatalogEntry, error)
	Export(ctx context.Context, opt migration.ExportOptions) (*migration.Snapshot, error)
	Import(ctx context.Context, req migration.ImportRequest, reconcile bool) (*ImportOutcome, error)
	Reconcile(ctx context.Context, models []string) ([]migration.ReconcileResult, error)
}

// ImportOutcome is a successful import plus the sequence repairs that followed it.
type ImportOutcome struct {
	*migration.ImportResult
	Reconcile []migration.ReconcileResult `json:"reconcile,omitempty"`
}

// App implements Service on top of one engine.
type App struct {
	engine *migration.Engine
	log    *slog.Logger
	// ReconcileByDefault is applied by front ends that expose no explicit switch.
	ReconcileByDefault bool
	closers            []func()
}

var _ Service = (*App)(nil)

// New wraps an engine.
func New(engine *migration.Engine, log *slog.Logger) *App {
	if log == nil {
		log = slog.Default()
	}
	return &App{engine: engine, log: log, ReconcileByDefault: true}
}

// Open connects to PostgreSQL and builds the engine with the configured
// confirmation phrase and import locks: a database advisory lock, a host
// file lock and an in-process mutex.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	pool, err := pgdao.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a, err := FromPool(pool, cfg, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)
	return a, nil
}

// FromPool builds the App on an existing pool. The caller keeps ownership of pool.
func FromPool(pool *pgxpool.Pool, cfg config.Config, log *slog.Logger) (*App, error) {
	st := pgdao.NewStore(pool, cfg.Postgres.Schema)
	locks := migration.Chain{&migration.MutexLocker{}}
	if cfg.Migration.LockFile != "" {
		fl, err := migration.NewFileLocker(cfg.Migration.LockFile)
		if err != nil {
			return nil, err
		}
		locks = append(locks, fl)
	}
	locks = append(locks, pgdao.NewAdvisoryLocker(pool, st.Identity()))
	engine := migration.NewEngine(registry.Default(), st,
		migration.WithLogger(log),
		migration.WithLocker(locks),
		migration.WithConfirmPhrase(cfg.Migration.ConfirmPhrase),
		migration.WithSource(cfg.Postgres.DBName),
	)
	a := New(engine, log)
	a.ReconcileByDefault = cfg.Migration.Reconcile()
	return a, nil
}

// Close releases whatever Open acquired.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *App) Catalog(ctx context.Context) ([]migration.CatalogEntry, error) {
	return a.engine.Catalog(ctx)
}

func (a *App) Export(ctx context.Context, opt migration.ExportOptions) (*migration.Snapshot, error) {
	return a.engine.Export(ctx, opt)
}

func (a *App) Reconcile(ctx context.Context, models []string) ([]migration.ReconcileResult, error) {
	return a.engine.Reconcile(ctx, models)
}

// Import runs the import, then repairs the sequences of the models it wrote.
// A reconcile failure does not undo the committed import: it is logged and
// reported per model.
func (a *App) Import(ctx context.Context, req migration.ImportRequest, reconcile bool) (*ImportOutcome, error) {
	res, err := a.engine.Import(ctx, req)
	if err != nil {
		return nil, err
	}
	out := &ImportOutcome{ImportResult: res}
	if !reconcile || req.DryRun {
		return out, nil
	}
	var seq []string
	for _, name := range res.Plan.InsertOrder {
		if m, err := a.engine.Registry().Resolve(name); err == nil && m.SequenceColumn != "" {
			seq = append(seq, name)
		}
	}
	if len(seq) == 0 {
		return out, nil
	}
	rec, err := a.engine.Reconcile(ctx, seq)
	if err != nil {
		a.log.Warn("post-import reconcile failed", "run_id", res.RunID, "error", err)
		return out, nil
	}
	out.Reconcile = rec
	return out, nil
}
