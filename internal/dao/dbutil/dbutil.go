package dbutil

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// ParamSummary returns a privacy-conscious summary of a parameter for logging.
// Values are never echoed except numbers and booleans.
//
// Rules:
// - name=null for nil, nil pointers and invalid pgtype values
// - name=empty for empty strings
// - name=len=N for non-empty strings, slices, arrays and maps
// - name=V for integers, floats and json.Number
// - name=true/false for booleans
// - name=zero-time or name=non-zero-time for times
// - name=<kind> otherwise
func ParamSummary(name string, v any) string {
	switch x := v.(type) {
	case nil:
		return name + "=null"
	case json.Number:
		return name + "=" + x.String()
	case pgtype.Text:
		if !x.Valid {
			return name + "=null"
		}
		return ParamSummary(name, x.String)
	case pgtype.Int8:
		if !x.Valid {
			return name + "=null"
		}
		return fmt.Sprintf("%s=%d", name, x.Int64)
	case pgtype.Bool:
		if !x.Valid {
			return name + "=null"
		}
		return fmt.Sprintf("%s=%t", name, x.Bool)
	case pgtype.Timestamptz:
		if !x.Valid {
			return name + "=null"
		}
		return ParamSummary(name, x.Time)
	case pgtype.Timestamp:
		if !x.Valid {
			return name + "=null"
		}
		return ParamSummary(name, x.Time)
	case time.Time:
		if x.IsZero() {
			return name + "=zero-time"
		}
		return name + "=non-zero-time"
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return name + "=null"
		}
		return ParamSummary(name, rv.Elem().Interface())
	}
	switch rv.Kind() {
	case reflect.String:
		if rv.Len() == 0 {
			return name + "=empty"
		}
		return fmt.Sprintf("%s=len=%d", name, rv.Len())
	case reflect.Slice, reflect.Array, reflect.Map:
		return fmt.Sprintf("%s=len=%d", name, rv.Len())
	case reflect.Bool:
		return fmt.Sprintf("%s=%t", name, rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fmt.Sprintf("%s=%d", name, rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fmt.Sprintf("%s=%d", name, rv.Uint())
	case reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%s=%g", name, rv.Float())
	default:
		return fmt.Sprintf("%s=%s", name, rv.Kind().String())
	}
}

// ErrWrap returns a formatted error with an operation label and optional summaries.
// Example: ErrWrap("store.insert", err, ParamSummary("table", table), ParamSummary("row", i))
func ErrWrap(op string, err error, parts ...string) error {
	if err == nil {
		return nil
	}
	if len(parts) == 0 {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w; %s", op, err, strings.Join(parts, ","))
}
