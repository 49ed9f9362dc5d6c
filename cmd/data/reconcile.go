package datacmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/flarebyte/datamove/internal/migration"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	flagReconcileModels []string
	flagReconcileJSON   bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Advance id sequences past the largest stored id",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		a, _, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Reconcile(ctx, flagReconcileModels)
		if err != nil {
			return err
		}
		if flagReconcileJSON {
			return printJSON(map[string]any{"results": res})
		}
		renderReconcile(res)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringSliceVar(&flagReconcileModels, "models", nil, "Models to reconcile (default every model with a sequence)")
	reconcileCmd.Flags().BoolVar(&flagReconcileJSON, "json", false, "Output JSON")
}

func renderReconcile(res []migration.ReconcileResult) {
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"MODEL", "MAX ID", "NEXT VALUE", "CORRECTED", "ERROR"})
	for _, r := range res {
		tw.Append([]string{
			r.Model,
			fmt.Sprintf("%d", r.PriorMaxID),
			fmt.Sprintf("%d", r.PriorSequenceValue),
			fmt.Sprintf("%t", r.Corrected),
			r.Error,
		})
	}
	tw.Render()
}
