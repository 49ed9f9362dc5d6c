// Package sanitize reduces exported records to flat, insertable rows.
package sanitize

import (
	"reflect"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

var dateTypes = map[reflect.Type]bool{
	reflect.TypeOf(time.Time{}):          true,
	reflect.TypeOf(pgtype.Timestamp{}):   true,
	reflect.TypeOf(pgtype.Timestamptz{}): true,
	reflect.TypeOf(pgtype.Date{}):        true,
}

// Flatten returns a copy of rec without embedded relation data.
//
// A key is dropped when its value is a list whose first element is an object,
// or a non-null object that is not a date. Everything else is kept, including
// scalar foreign key ids and dates. The input is never modified.
func Flatten(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		if nested(v) {
			continue
		}
		out[k] = v
	}
	return out
}

// nested reports whether v is relation-shaped.
func nested(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return false
		}
		if rv.Len() == 0 {
			return false
		}
		return object(rv.Index(0))
	default:
		return object(rv)
	}
}

// object reports whether rv holds a non-null structured value that is not a date.
func object(rv reflect.Value) bool {
	for rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		return !rv.IsNil()
	case reflect.Struct:
		return !dateTypes[rv.Type()]
	}
	return false
}

// Rules is the model-aware sanitizer built from a model's declarations.
type Rules struct {
	relations map[string]bool
}

// New builds rules that always drop the given relation fields.
func New(relationFields []string) Rules {
	r := Rules{relations: make(map[string]bool, len(relationFields))}
	for _, f := range relationFields {
		r.relations[f] = true
	}
	return r
}

// Apply sanitizes one record. Declared relations go first and the remaining
// keys follow the Flatten shape rules.
func (r Rules) Apply(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		if r.relations[k] || nested(v) {
			continue
		}
		out[k] = v
	}
	return out
}

// ApplyAll sanitizes every record into a new slice.
func (r Rules) ApplyAll(recs []map[string]any) []map[string]any {
	out := make([]map[string]any, len(recs))
	for i, rec := range recs {
		out[i] = r.Apply(rec)
	}
	return out
}
