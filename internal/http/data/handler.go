// Package data serves the administrative data-management endpoints.
package data

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/flarebyte/datamove/internal/app"
	"github.com/flarebyte/datamove/internal/migration"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// maxUpload bounds the multipart body held in memory; larger parts spill to disk.
const maxUpload = 32 << 20

// Authorizer decides whether the caller is an administrator.
type Authorizer interface {
	Authorize(r *http.Request) bool
}

// TokenAuthorizer accepts "Authorization: Bearer <Token>". An empty Token denies everyone.
type TokenAuthorizer struct {
	Token string
}

func (a TokenAuthorizer) Authorize(r *http.Request) bool {
	if a.Token == "" {
		return false
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(a.Token)) == 1
}

// ExportRequest is the optional JSON body of POST /export.
type ExportRequest struct {
	Include []string `json:"include" validate:"omitempty,dive,required"`
	Exclude []string `json:"exclude" validate:"omitempty,dive,required"`
}

// ReconcileRequest is the optional JSON body of POST /reconcile.
type ReconcileRequest struct {
	Models []string `json:"models" validate:"omitempty,dive,required"`
}

type modelsResponse struct {
	Models []migration.CatalogEntry `json:"models"`
}

type importResponse struct {
	Success bool `json:"success"`
	DryRun  bool `json:"dry_run"`
	*app.ImportOutcome
}

type reconcileResponse struct {
	Results []migration.ReconcileResult `json:"results"`
}

// Handler bundles dependencies for the data endpoints.
type Handler struct {
	svc       app.Service
	auth      Authorizer
	validate  *validator.Validate
	reconcile bool
}

// New constructs a Handler. reconcile is the default for imports that do
// not say otherwise.
func New(svc app.Service, auth Authorizer, reconcile bool) *Handler {
	return &Handler{svc: svc, auth: auth, validate: validator.New(), reconcile: reconcile}
}

// Router wires the handler into a chi router at /api/admin/data.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Route("/api/admin/data", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/models", h.getModels)
		r.Post("/export", h.postExport)
		r.Post("/import", h.postImport)
		r.Post("/reconcile", h.postReconcile)
	})
	return r
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.auth == nil || !h.auth.Authorize(r) {
			writeError(w, http.StatusForbidden, "forbidden", "administrator access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) getModels(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Catalog(r.Context())
	if err != nil {
		writeMigrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: entries})
}

// postExport always serves the redacted profile: downloads leave the
// server boundary.
func (h *Handler) postExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	snap, err := h.svc.Export(r.Context(), migration.ExportOptions{Include: req.Include, Exclude: req.Exclude, Redact: true})
	if err != nil {
		writeMigrationError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+snap.Filename()+`"`)
	w.WriteHeader(http.StatusOK)
	_ = snap.Encode(w)
}

func (h *Handler) postImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "expected multipart/form-data: "+err.Error(), nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	dryRun, err1 := formBool(r, "dry_run", false)
	skip, err2 := formBool(r, "skip_existing", false)
	merge, err3 := formBool(r, "merge", false)
	reconcile, err4 := formBool(r, "reconcile", h.reconcile)
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
		return
	}

	// A missing file still goes through the engine so a wrong confirmation
	// phrase is reported first.
	var payload io.Reader = strings.NewReader("")
	if f, _, err := r.FormFile("file"); err == nil {
		defer f.Close()
		payload = f
	}

	out, err := h.svc.Import(r.Context(), migration.ImportRequest{
		Payload:      payload,
		Confirm:      r.FormValue("confirm"),
		Include:      splitCSV(r.FormValue("include")),
		DryRun:       dryRun,
		SkipExisting: skip,
		Merge:        merge,
	}, reconcile)
	if err != nil {
		writeMigrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Success: true, DryRun: dryRun, ImportOutcome: out})
}

func (h *Handler) postReconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	res, err := h.svc.Reconcile(r.Context(), req.Models)
	if err != nil {
		writeMigrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse{Results: res})
}

// decodeOptional decodes and validates a JSON body; an empty body is allowed.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error(), nil)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
		return false
	}
	return true
}

func formBool(r *http.Request, key string, def bool) (bool, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New(key + ": expected a boolean")
	}
	return b, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// writeJSON writes a value as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorEnvelope struct {
	Error   string   `json:"error"`
	Details string   `json:"details"`
	Models  []string `json:"models,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, details string, models []string) {
	writeJSON(w, status, errorEnvelope{Error: code, Details: details, Models: models})
}

// Classify maps an engine error to an HTTP status and a stable error code.
func Classify(err error) (status int, code string) {
	switch {
	case errors.Is(err, migration.ErrConfirmationRequired):
		return http.StatusBadRequest, "confirmation_required"
	case errors.Is(err, migration.ErrInvalidFormat):
		return http.StatusBadRequest, "invalid_format"
	case errors.Is(err, migration.ErrInvalidMode):
		return http.StatusBadRequest, "invalid_mode"
	case errors.Is(err, migration.ErrUnknownModel):
		return http.StatusBadRequest, "unknown_model"
	case errors.Is(err, migration.ErrMissingOrInvalidModel):
		return http.StatusBadRequest, "missing_or_invalid_model"
	case errors.Is(err, migration.ErrImportInProgress):
		return http.StatusConflict, "import_in_progress"
	default:
		return http.StatusInternalServerError, "store_failure"
	}
}

func writeMigrationError(w http.ResponseWriter, err error) {
	status, code := Classify(err)
	var models []string
	var me *migration.ModelError
	if errors.As(err, &me) {
		models = me.Models
	}
	writeError(w, status, code, err.Error(), models)
}
