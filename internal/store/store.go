// Package store defines the generic relational contract the migration engine
// runs against. Adapters live under internal/dao.
package store

import (
	"context"
	"errors"
)

// Record is one row keyed by column name. Relation graphs embedded by an
// export query appear as nested maps or slices of maps.
type Record = map[string]any

var (
	// ErrNoSequence is returned when a column has no backing sequence.
	ErrNoSequence = errors.New("no backing sequence")
	// ErrLocked is returned by a Locker when another holder owns the lock.
	ErrLocked = errors.New("lock held elsewhere")
)

// Relation describes a related row (or rows) embedded into each exported record.
//
// One-to-one: related[RemoteKey] == record[LocalKey].
// Many through a join table: join[ThroughLocal] == record[LocalKey] and
// join[ThroughRemote] == related[RemoteKey].
type Relation struct {
	Field         string
	Table         string
	Columns       []string // nil selects every column
	LocalKey      string
	RemoteKey     string
	Through       string
	ThroughLocal  string
	ThroughRemote string
}

// Many reports whether the relation yields a list.
func (r Relation) Many() bool { return r.Through != "" }

// SelectQuery reads every row of a table.
type SelectQuery struct {
	Table     string
	Columns   []string // nil selects every column
	OrderBy   []string
	Relations []Relation
}

// Conflict says what an insert does with a row whose Key already exists.
type Conflict int

const (
	// ConflictFail aborts the insert with a duplicate key error.
	ConflictFail Conflict = iota
	// ConflictSkip drops the incoming row.
	ConflictSkip
	// ConflictUpdate overwrites the stored row with the incoming columns.
	ConflictUpdate
)

// InsertOptions tunes a bulk insert.
type InsertOptions struct {
	OnConflict Conflict
	Key        []string
}

// SequenceState is the observable state of an auto-increment sequence.
type SequenceState struct {
	Last   int64
	Called bool
}

// NextValue is the value the sequence will hand out next.
func (s SequenceState) NextValue() int64 {
	if s.Called {
		return s.Last + 1
	}
	return s.Last
}

// Querier is the per-model data access surface. Table names are unqualified.
type Querier interface {
	Count(ctx context.Context, table string) (int, error)
	// CountExisting reports how many of rows already have a matching key in table.
	CountExisting(ctx context.Context, table string, key []string, rows []Record) (int, error)
	Select(ctx context.Context, q SelectQuery) ([]Record, error)
	DeleteAll(ctx context.Context, table string) (int, error)
	// Insert returns the rows written: inserted plus, under ConflictUpdate, updated.
	Insert(ctx context.Context, table string, rows []Record, opt InsertOptions) (int, error)
	// MaxValue returns the largest value of an integer column; ok is false for an empty table.
	MaxValue(ctx context.Context, table, column string) (max int64, ok bool, err error)
	Sequence(ctx context.Context, table, column string) (SequenceState, error)
	// SetSequence makes the sequence hand out value+1 next.
	SetSequence(ctx context.Context, table, column string, value int64) error
}

// Store is a Querier that can also run work atomically.
type Store interface {
	Querier
	// InTx runs fn in one transaction. Any error rolls back every change made through q.
	InTx(ctx context.Context, fn func(q Querier) error) error
	// ReadTx runs fn against a consistent read-only view.
	ReadTx(ctx context.Context, fn func(q Querier) error) error
	// Identity names the underlying database; used to key cross-process locks.
	Identity() string
}

// Locker grants exclusive access. TryLock never waits: it fails with ErrLocked
// when someone else holds the lock.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), err error)
}
