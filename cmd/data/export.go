package datacmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/flarebyte/datamove/internal/migration"
	"github.com/spf13/cobra"
)

var (
	flagExportInclude []string
	flagExportExclude []string
	flagExportFull    bool
	flagExportOutput  string
	flagExportTimeout time.Duration
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a JSON snapshot of the selected models",
	Long: `Write a JSON snapshot of the selected models.

The default is the redacted profile served over HTTP: credentials and nested
relations are stripped and credential-only models are withheld. --full writes
every column and model so the snapshot can be imported again; keep such files
private.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), flagExportTimeout)
		defer cancel()
		a, _, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.Export(ctx, migration.ExportOptions{
			Include: flagExportInclude,
			Exclude: flagExportExclude,
			Redact:  !flagExportFull,
		})
		if err != nil {
			return err
		}

		out := flagExportOutput
		if out == "" {
			out = snap.Filename()
		}
		var w io.Writer = os.Stdout
		if out != "-" {
			f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := snap.Encode(w); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		if out != "-" {
			total := 0
			for _, n := range snap.Metadata.Counts {
				total += n
			}
			fmt.Fprintf(os.Stderr, "exported %d rows across %d models to %s\n", total, len(snap.Data), out)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringSliceVar(&flagExportInclude, "include", nil, "Models to export (default all)")
	exportCmd.Flags().StringSliceVar(&flagExportExclude, "exclude", nil, "Models to leave out")
	exportCmd.Flags().BoolVar(&flagExportFull, "full", false, "Keep credentials, nested relations and withheld models")
	exportCmd.Flags().StringVarP(&flagExportOutput, "output", "o", "", "Output file, - for stdout (default datamove_export_<time>.json)")
	exportCmd.Flags().DurationVar(&flagExportTimeout, "timeout", 10*time.Minute, "Overall timeout")
}
