package datacmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var flagModelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List registered models in dependency order with live row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a, _, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Catalog(ctx)
		if err != nil {
			return err
		}
		if flagModelsJSON {
			return printJSON(map[string]any{"models": entries})
		}
		tw := tablewriter.NewWriter(os.Stdout)
		tw.SetHeader([]string{"RANK", "MODEL", "TABLE", "ROWS"})
		for _, e := range entries {
			tw.Append([]string{fmt.Sprintf("%d", e.Rank), e.Name, e.Table, fmt.Sprintf("%d", e.Count)})
		}
		tw.Render()
		return nil
	},
}

func init() {
	modelsCmd.Flags().BoolVar(&flagModelsJSON, "json", false, "Output JSON")
}
