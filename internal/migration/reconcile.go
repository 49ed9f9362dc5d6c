package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/flarebyte/datamove/internal/registry"
	"github.com/flarebyte/datamove/internal/store"
)

// ReconcileResult is the outcome for one model.
type ReconcileResult struct {
	Model              string `json:"model"`
	PriorMaxID         int64  `json:"prior_max_id"`
	PriorSequenceValue int64  `json:"prior_sequence_value"`
	Corrected          bool   `json:"corrected"`
	Error              string `json:"error,omitempty"`
}

// Reconcile moves every auto-increment sequence past the largest key in its
// table. It runs outside any import transaction. A per-model failure is
// recorded on that model's result and does not stop the sweep. With no names,
// every model that declares a sequence column is checked.
func (e *Engine) Reconcile(ctx context.Context, names []string) (out []ReconcileResult, err error) {
	defer observe("reconcile", time.Now(), &err)
	if err := e.unknownModels(names); err != nil {
		return nil, err
	}
	var models []registry.ModelSpec
	if len(names) == 0 {
		for _, m := range e.reg.List() {
			if m.SequenceColumn != "" {
				models = append(models, m)
			}
		}
	} else {
		models, err = e.reg.InsertOrder(names)
		if err != nil {
			return nil, err
		}
	}
	out = make([]ReconcileResult, 0, len(models))
	for _, m := range models {
		res := e.reconcileModel(ctx, m)
		if res.Error != "" {
			e.log.Warn("sequence check failed", "model", m.Name, "error", res.Error)
		} else if res.Corrected {
			sequenceCorrections.WithLabelValues(m.Name).Inc()
			e.log.Info("sequence corrected", "model", m.Name, "max_id", res.PriorMaxID, "prior_next", res.PriorSequenceValue)
		}
		out = append(out, res)
	}
	return out, nil
}

func (e *Engine) reconcileModel(ctx context.Context, m registry.ModelSpec) ReconcileResult {
	res := ReconcileResult{Model: m.Name}
	if m.SequenceColumn == "" {
		res.Error = fmt.Sprintf("%v: %s", store.ErrNoSequence, m.Name)
		return res
	}
	max, ok, err := e.store.MaxValue(ctx, m.Table, m.SequenceColumn)
	if err != nil {
		res.Error = storeErr(m.Name, PhaseReconcile, err).Error()
		return res
	}
	seq, err := e.store.Sequence(ctx, m.Table, m.SequenceColumn)
	if err != nil {
		res.Error = storeErr(m.Name, PhaseReconcile, err).Error()
		return res
	}
	res.PriorMaxID = max
	res.PriorSequenceValue = seq.NextValue()
	if !ok || seq.NextValue() > max {
		return res
	}
	if err := e.store.SetSequence(ctx, m.Table, m.SequenceColumn, max); err != nil {
		res.Error = storeErr(m.Name, PhaseReconcile, err).Error()
		return res
	}
	res.Corrected = true
	return res
}
