package migration

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Match them with errors.Is.
var (
	ErrUnknownModel          = errors.New("unknown model")
	ErrInvalidFormat         = errors.New("invalid snapshot format")
	ErrConfirmationRequired  = errors.New("confirmation phrase required")
	ErrMissingOrInvalidModel = errors.New("missing or invalid model in snapshot")
	ErrStoreFailure          = errors.New("store failure")
	ErrImportInProgress      = errors.New("import already in progress")
	ErrInvalidMode           = errors.New("invalid import mode")
)

// ModelError reports every offending model name of a request at once.
type ModelError struct {
	Kind    error
	Models  []string
	Unknown []string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, strings.Join(e.Models, ", "))
}

func (e *ModelError) Unwrap() error { return e.Kind }

// Is also matches ErrUnknownModel when any name is not registered at all.
func (e *ModelError) Is(target error) bool {
	return target == ErrUnknownModel && len(e.Unknown) > 0
}

// Phase names a step of the import or reconcile pipeline.
type Phase string

const (
	PhaseCount     Phase = "count"
	PhaseDelete    Phase = "delete"
	PhaseInsert    Phase = "insert"
	PhaseCommit    Phase = "commit"
	PhaseLock      Phase = "lock"
	PhaseExport    Phase = "export"
	PhaseReconcile Phase = "reconcile"
)

// StoreError wraps a store failure with the model and phase it happened in.
type StoreError struct {
	Model string
	Phase Phase
	Err   error
}

func (e *StoreError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("%v during %s: %v", ErrStoreFailure, e.Phase, e.Err)
	}
	return fmt.Sprintf("%v during %s of %s: %v", ErrStoreFailure, e.Phase, e.Model, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreFailure }

func storeErr(model string, phase Phase, err error) error {
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Model: model, Phase: phase, Err: err}
}
