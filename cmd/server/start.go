package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/flarebyte/datamove/internal/app"
	cfgpkg "github.com/flarebyte/datamove/internal/config"
	srv "github.com/flarebyte/datamove/internal/server"
	"github.com/spf13/cobra"
)

var (
	flagDetach   bool
	flagHTTPAddr string
	flagGRPCAddr string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		exe, err := os.Executable()
		if err != nil {
			return err
		}

		pidPath := srv.DefaultPIDPath()
		if flagDetach {
			// Spawn a detached child running in foreground mode
			args := []string{"server", "start"}
			if flagHTTPAddr != "" {
				args = append(args, "--addr", flagHTTPAddr)
			}
			if flagGRPCAddr != "" {
				args = append(args, "--grpc-addr", flagGRPCAddr)
			}
			child := exec.Command(exe, args...)
			logPath := filepath.Join(filepath.Dir(pidPath), "server.log")
			lf, _ := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if lf != nil {
				defer lf.Close()
				child.Stdout = lf
				child.Stderr = lf
			}
			if runtime.GOOS != "windows" {
				child.SysProcAttr = srv.DetachAttr()
			}
			if err := child.Start(); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "server started in background (pid=%d, log=%s)\n", child.Process.Pid, logPath)
			return nil
		}

		cfg, err := cfgpkg.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.Server.AdminToken == "" {
			slog.Warn("server.admin_token is empty; every data request will be refused")
		}
		httpAddr := flagHTTPAddr
		if httpAddr == "" {
			httpAddr = fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
		}
		grpcAddr := flagGRPCAddr
		if grpcAddr == "" {
			grpcAddr = fmt.Sprintf("127.0.0.1:%d", cfg.Server.GRPCPort)
		}

		ctx := context.Background()
		a, err := app.Open(ctx, cfg, slog.Default())
		if err != nil {
			return err
		}
		defer a.Close()

		return srv.RunForeground(ctx, a, srv.Options{
			HTTPAddr:   httpAddr,
			GRPCAddr:   grpcAddr,
			PIDPath:    pidPath,
			AdminToken: cfg.Server.AdminToken,
			Reconcile:  cfg.Migration.Reconcile(),
			Log:        slog.Default(),
		})
	},
}

func init() {
	startCmd.Flags().BoolVar(&flagDetach, "detach", false, "Run in background")
	startCmd.Flags().StringVar(&flagHTTPAddr, "addr", "", "HTTP listen address (defaults to config)")
	startCmd.Flags().StringVar(&flagGRPCAddr, "grpc-addr", "", "gRPC listen address (defaults to config)")
}
