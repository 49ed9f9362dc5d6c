package migration

import (
	"encoding/json"

	"github.com/flarebyte/datamove/internal/app"
	mig "github.com/flarebyte/datamove/internal/migration"
)

// Proto-compatible structs for the JSON codec based gRPC service.

type CatalogRequest struct{}

type CatalogResponse struct {
	Models []mig.CatalogEntry `json:"models"`
}

type ExportRequest struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

type ExportResponse struct {
	Filename string        `json:"filename"`
	Snapshot *mig.Snapshot `json:"snapshot"`
}

type ImportRequest struct {
	// Snapshot is the export document, embedded as-is.
	Snapshot     json.RawMessage `json:"snapshot"`
	Confirm      string          `json:"confirm"`
	Include      []string        `json:"include,omitempty"`
	DryRun       bool            `json:"dry_run,omitempty"`
	SkipExisting bool            `json:"skip_existing,omitempty"`
	Merge        bool            `json:"merge,omitempty"`
	// Reconcile overrides the server default when set.
	Reconcile *bool `json:"reconcile,omitempty"`
}

type ImportResponse struct {
	*app.ImportOutcome
}

type ReconcileRequest struct {
	Models []string `json:"models,omitempty"`
}

type ReconcileResponse struct {
	Results []mig.ReconcileResult `json:"results"`
}
