package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// State is a step of the import state machine.
type State string

const (
	StateValidating State = "validating"
	StatePlanning   State = "planning"
	StateDeleting   State = "deleting"
	StateInserting  State = "inserting"
	StateCommitting State = "committing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// transitions lists the legal forward moves. Failed is reachable from any
// non-terminal state. Planning goes straight to Done on a dry run.
var transitions = map[State][]State{
	StateValidating: {StatePlanning},
	StatePlanning:   {StateDeleting, StateDone},
	StateDeleting:   {StateInserting},
	StateInserting:  {StateCommitting},
	StateCommitting: {StateDone},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition is reported to observers on every state change.
type Transition struct {
	RunID string
	From  State
	To    State
	At    time.Time
	Err   error
}

// run tracks one import through the state machine.
type run struct {
	id      string
	state   State
	log     *slog.Logger
	now     func() time.Time
	observe func(Transition)
	history []State
}

func (r *run) to(ctx context.Context, next State) {
	r.move(ctx, next, nil)
}

func (r *run) fail(ctx context.Context, err error) error {
	r.move(ctx, StateFailed, err)
	return err
}

func (r *run) move(ctx context.Context, next State, err error) {
	if !CanTransition(r.state, next) {
		panic(fmt.Sprintf("migration: illegal transition %s -> %s", r.state, next))
	}
	t := Transition{RunID: r.id, From: r.state, To: next, At: r.now(), Err: err}
	r.state = next
	r.history = append(r.history, next)
	level := slog.LevelDebug
	switch next {
	case StateDeleting:
		level = slog.LevelWarn
	case StateFailed:
		level = slog.LevelError
	case StateDone:
		level = slog.LevelInfo
	}
	attrs := []any{"run_id", r.id, "from", string(t.From), "to", string(next)}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	r.log.Log(ctx, level, "import state", attrs...)
	if r.observe != nil {
		r.observe(t)
	}
}
