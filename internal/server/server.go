package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flarebyte/datamove/internal/app"
	datahttp "github.com/flarebyte/datamove/internal/http/data"
	"github.com/flarebyte/datamove/internal/paths"
	migsrv "github.com/flarebyte/datamove/internal/server/migration"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

const shutdownGrace = 10 * time.Second

// Options configures the HTTP and gRPC listeners.
type Options struct {
	HTTPAddr   string
	GRPCAddr   string
	PIDPath    string
	AdminToken string
	// Reconcile is the default for imports that do not say.
	Reconcile bool
	Log       *slog.Logger
}

// DefaultPIDPath is the pid file under the datamove home directory.
func DefaultPIDPath() string {
	if _, err := paths.EnsureHome(); err != nil {
		return "server.pid"
	}
	return paths.PIDFile()
}

// Handler builds the HTTP surface: health, metrics, the admin data API and
// the Connect bridge to the migration service.
func Handler(svc app.Service, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	data := datahttp.New(svc, datahttp.TokenAuthorizer{Token: opts.AdminToken}, opts.Reconcile)
	r.Handle("/api/admin/data/*", data.Router())

	rpc := &migsrv.Service{App: svc, ReconcileByDefault: opts.Reconcile}
	r.Handle("/"+migsrv.ServiceName+"/*", rpc.ConnectHandler(opts.AdminToken))
	return r
}

// RunForeground serves until SIGTERM/SIGINT or ctx is cancelled, then stops
// both listeners gracefully.
func RunForeground(ctx context.Context, svc app.Service, opts Options) error {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	if err := writePID(opts.PIDPath); err != nil {
		return err
	}
	defer removePID(opts.PIDPath)

	grpcLis, err := net.Listen("tcp", opts.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	httpLis, err := net.Listen("tcp", opts.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("listen http: %w", err)
	}

	gs := grpc.NewServer(grpc.UnaryInterceptor(migsrv.TokenInterceptor(opts.AdminToken)))
	(&migsrv.Service{App: svc, ReconcileByDefault: opts.Reconcile}).Register(gs)
	reflection.Register(gs)

	hs := &http.Server{
		Handler:           Handler(svc, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		if err := gs.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		if err := hs.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	log.Info("server started", "http", httpLis.Addr().String(), "grpc", grpcLis.Addr().String(), "pid", os.Getpid())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info("server stopping")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	gs.GracefulStop()
	return runErr
}

func writePID(pidPath string) error {
	if _, err := os.Stat(pidPath); err == nil {
		return fmt.Errorf("pid file exists: %s", pidPath)
	}
	f, err := os.OpenFile(pidPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d", os.Getpid())
	return err
}

func removePID(pidPath string) {
	_ = os.Remove(pidPath)
}

func ReadPID(pidPath string) (int, error) {
	b, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(b), "%d", &pid); err != nil {
		return 0, err
	}
	return pid, nil
}

// DetachAttr returns platform-specific attributes to detach a process.
func DetachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
