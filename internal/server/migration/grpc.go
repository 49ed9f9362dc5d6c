package migration

import (
	"bytes"
	"context"
	"crypto/subtle"
	"strings"

	"github.com/flarebyte/datamove/internal/app"
	mig "github.com/flarebyte/datamove/internal/migration"
	grpcjson "github.com/flarebyte/datamove/internal/transport/grpcjson"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const ServiceName = "migration.v1.MigrationService"

// MigrationServiceServer is the handler contract checked by RegisterService.
type MigrationServiceServer interface {
	Catalog(context.Context, *CatalogRequest) (*CatalogResponse, error)
	Export(context.Context, *ExportRequest) (*ExportResponse, error)
	Import(context.Context, *ImportRequest) (*ImportResponse, error)
	Reconcile(context.Context, *ReconcileRequest) (*ReconcileResponse, error)
}

var _ MigrationServiceServer = (*Service)(nil)

// Service serves the migration RPCs over the JSON codec.
type Service struct {
	App app.Service
	// ReconcileByDefault applies when an ImportRequest leaves Reconcile unset.
	ReconcileByDefault bool
}

// Register registers the service on the provided gRPC server.
func (s *Service) Register(grpcServer *grpc.Server) {
	// ensure codec registered once
	grpcjson.Register()
	grpcServer.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*MigrationServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			unary("Catalog", (*Service).Catalog),
			unary("Export", (*Service).Export),
			unary("Import", (*Service).Import),
			unary("Reconcile", (*Service).Reconcile),
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "proto/migration/v1/migration.proto",
	}, s)
}

// unary builds the method handler: decode, then run through the interceptor.
func unary[Req, Resp any](name string, call func(*Service, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Service)
			h := func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			}
			if interceptor == nil {
				return h(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, h)
		},
	}
}

func (s *Service) Catalog(ctx context.Context, _ *CatalogRequest) (*CatalogResponse, error) {
	entries, err := s.App.Catalog(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &CatalogResponse{Models: entries}, nil
}

// Export returns the redacted profile, like the HTTP download.
func (s *Service) Export(ctx context.Context, req *ExportRequest) (*ExportResponse, error) {
	snap, err := s.App.Export(ctx, mig.ExportOptions{Include: req.Include, Exclude: req.Exclude, Redact: true})
	if err != nil {
		return nil, mapError(err)
	}
	return &ExportResponse{Filename: snap.Filename(), Snapshot: snap}, nil
}

func (s *Service) Import(ctx context.Context, req *ImportRequest) (*ImportResponse, error) {
	reconcile := s.ReconcileByDefault
	if req.Reconcile != nil {
		reconcile = *req.Reconcile
	}
	out, err := s.App.Import(ctx, mig.ImportRequest{
		Payload:      bytes.NewReader(req.Snapshot),
		Confirm:      req.Confirm,
		Include:      req.Include,
		DryRun:       req.DryRun,
		SkipExisting: req.SkipExisting,
		Merge:        req.Merge,
	}, reconcile)
	if err != nil {
		return nil, mapError(err)
	}
	return &ImportResponse{ImportOutcome: out}, nil
}

func (s *Service) Reconcile(ctx context.Context, req *ReconcileRequest) (*ReconcileResponse, error) {
	res, err := s.App.Reconcile(ctx, req.Models)
	if err != nil {
		return nil, mapError(err)
	}
	return &ReconcileResponse{Results: res}, nil
}

// TokenInterceptor rejects calls whose authorization metadata does not carry
// "Bearer <token>". An empty token rejects every call.
func TokenInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !authorized(ctx, token) {
			return nil, status.Error(codes.PermissionDenied, "administrator access required")
		}
		return handler(ctx, req)
	}
}

func authorized(ctx context.Context, token string) bool {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return false
	}
	return bearerMatches(md.Get("authorization"), token)
}

func bearerMatches(values []string, token string) bool {
	if token == "" {
		return false
	}
	for _, v := range values {
		if got, ok := strings.CutPrefix(v, "Bearer "); ok &&
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(token)) == 1 {
			return true
		}
	}
	return false
}
