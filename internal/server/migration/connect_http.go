package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const connectPrefix = "/" + ServiceName + "/"

// maxConnectBody bounds a Connect request body; snapshots travel inside Import.
const maxConnectBody = 256 << 20

// ConnectHandler serves the MigrationService methods using the Connect
// protocol with JSON encoding (application/connect+json). Calls must carry
// "Authorization: Bearer <token>".
func (s *Service) ConnectHandler(token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, ok := strings.CutPrefix(r.URL.Path, connectPrefix)
		if r.Method != http.MethodPost || !ok {
			http.NotFound(w, r)
			return
		}
		if !bearerMatches(r.Header.Values("Authorization"), token) {
			writeConnectError(w, "permission_denied", "administrator access required")
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxConnectBody))
		if err != nil {
			writeConnectError(w, "invalid_argument", "unreadable body")
			return
		}
		if len(bytes.TrimSpace(body)) == 0 {
			body = []byte("{}")
		}
		var resp any
		switch method {
		case "Catalog":
			resp, err = connectCall(r.Context(), body, s.Catalog)
		case "Export":
			resp, err = connectCall(r.Context(), body, s.Export)
		case "Import":
			resp, err = connectCall(r.Context(), body, s.Import)
		case "Reconcile":
			resp, err = connectCall(r.Context(), body, s.Reconcile)
		default:
			writeConnectError(w, "unimplemented", "unknown method "+method)
			return
		}
		if err != nil {
			st, _ := status.FromError(err)
			writeConnectError(w, connectCode(st.Code()), st.Message())
			return
		}
		writeConnectJSON(w, resp)
	})
}

func connectCall[Req, Resp any](ctx context.Context, body []byte, call func(context.Context, *Req) (*Resp, error)) (any, error) {
	in := new(Req)
	if err := json.Unmarshal(body, in); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid JSON body")
	}
	return call(ctx, in)
}

// writeConnectJSON writes a successful Connect JSON response.
func writeConnectJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/connect+json")
	w.Header().Set("Connect-Protocol-Version", "1")
	_ = json.NewEncoder(w).Encode(v)
}

// writeConnectError writes a Connect-style JSON error envelope.
// Unary errors are sent with 200 so simple clients can read the body.
func writeConnectError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/connect+json")
	w.Header().Set("Connect-Protocol-Version", "1")
	w.Header().Set("Connect-Error-Code", code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"details": []any{},
		},
	})
}
