package datacmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/flarebyte/datamove/internal/app"
	cfgpkg "github.com/flarebyte/datamove/internal/config"
	"github.com/spf13/cobra"
)

var DataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export, import and reconcile application data",
}

func init() {
	DataCmd.AddCommand(modelsCmd)
	DataCmd.AddCommand(exportCmd)
	DataCmd.AddCommand(importCmd)
	DataCmd.AddCommand(reconcileCmd)
}

// openApp loads config and connects; callers must Close the app.
func openApp(ctx context.Context) (*app.App, cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load()
	if err != nil {
		return nil, cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfg, err
	}
	a, err := app.Open(ctx, cfg, slog.Default())
	if err != nil {
		return nil, cfg, err
	}
	return a, cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
