package datacmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/flarebyte/datamove/internal/app"
	"github.com/flarebyte/datamove/internal/migration"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	flagImportInput        string
	flagImportConfirm      string
	flagImportInclude      []string
	flagImportDryRun       bool
	flagImportSkipExisting bool
	flagImportMerge        bool
	flagImportNoReconcile  bool
	flagImportJSON         bool
	flagImportTimeout      time.Duration
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the selected models with the contents of a snapshot",
	Long: `Replace the selected models with the contents of a snapshot.

Every selected model is emptied and refilled in one transaction.
--skip-existing keeps current rows and adds only missing keys; --merge
overwrites rows whose key is in the snapshot and adds the rest. The
confirmation phrase must be typed exactly; on a terminal it is prompted for
when --confirm is not given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagImportInput == "" {
			return errors.New("--input is required (use - for stdin)")
		}
		ctx, cancel := context.WithTimeout(context.Background(), flagImportTimeout)
		defer cancel()
		a, cfg, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		confirm := flagImportConfirm
		if !cmd.Flags().Changed("confirm") && flagImportInput != "-" && term.IsTerminal(int(os.Stdin.Fd())) {
			confirm, err = promptConfirm(cfg.Migration.ConfirmPhrase)
			if err != nil {
				return err
			}
		}

		var in io.Reader = os.Stdin
		if flagImportInput != "-" {
			f, err := os.Open(flagImportInput)
			if err != nil {
				return err
			}
			defer f.Close()
			in = bufio.NewReader(f)
		}

		reconcile := a.ReconcileByDefault && !flagImportNoReconcile
		out, err := a.Import(ctx, migration.ImportRequest{
			Payload:      in,
			Confirm:      confirm,
			Include:      flagImportInclude,
			DryRun:       flagImportDryRun,
			SkipExisting: flagImportSkipExisting,
			Merge:        flagImportMerge,
		}, reconcile)
		if err != nil {
			return err
		}
		if flagImportJSON {
			return printJSON(out)
		}
		renderImport(out)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVarP(&flagImportInput, "input", "i", "", "Snapshot file, - for stdin")
	importCmd.Flags().StringVar(&flagImportConfirm, "confirm", "", "Confirmation phrase")
	importCmd.Flags().StringSliceVar(&flagImportInclude, "include", nil, "Models to import (default every model in the snapshot)")
	importCmd.Flags().BoolVar(&flagImportDryRun, "dry-run", false, "Validate and plan without writing")
	importCmd.Flags().BoolVar(&flagImportSkipExisting, "skip-existing", false, "Keep current rows and add only missing keys")
	importCmd.Flags().BoolVar(&flagImportMerge, "merge", false, "Overwrite rows whose key exists and add the rest")
	importCmd.MarkFlagsMutuallyExclusive("skip-existing", "merge")
	importCmd.Flags().BoolVar(&flagImportNoReconcile, "no-reconcile", false, "Do not repair sequences after the import")
	importCmd.Flags().BoolVar(&flagImportJSON, "json", false, "Output JSON")
	importCmd.Flags().DurationVar(&flagImportTimeout, "timeout", 30*time.Minute, "Overall timeout")
}

func promptConfirm(phrase string) (string, error) {
	fmt.Fprintf(os.Stderr, "This replaces the selected tables. Type %q to continue: ", phrase)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func renderImport(out *app.ImportOutcome) {
	mode := string(out.Plan.Mode)
	if out.Plan.DryRun {
		mode += " (dry run)"
	}
	fmt.Fprintf(os.Stderr, "run %s: %s, %d models\n", out.RunID, mode, len(out.Plan.InsertOrder))

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"MODEL", "DELETED", "INSERTED", "UPDATED", "SKIPPED"})
	for _, name := range out.Plan.InsertOrder {
		s := out.Stats[name]
		tw.Append([]string{name, fmt.Sprintf("%d", s.Deleted), fmt.Sprintf("%d", s.Inserted), fmt.Sprintf("%d", s.Updated), fmt.Sprintf("%d", s.Skipped)})
	}
	tw.Render()

	if len(out.Reconcile) > 0 {
		renderReconcile(out.Reconcile)
	}
}
