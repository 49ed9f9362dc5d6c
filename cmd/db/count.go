package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	cfgpkg "github.com/flarebyte/datamove/internal/config"
	pgdao "github.com/flarebyte/datamove/internal/dao/postgres"
	"github.com/flarebyte/datamove/internal/registry"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var flagCountJSON bool

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count rows for each CityForge table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cfgpkg.Load()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		db, err := pgdao.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		models := registry.Default().List()
		tables := make([]string, 0, len(models))
		for _, m := range models {
			tables = append(tables, m.Table)
		}
		counts, err := pgdao.TableCounts(ctx, db, cfg.Postgres.Schema, tables)
		if err != nil {
			return err
		}

		if flagCountJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(counts)
		}
		tw := tablewriter.NewWriter(os.Stdout)
		tw.SetHeader([]string{"TABLE", "MODEL", "ROWS"})
		for _, m := range models {
			n := counts[m.Table]
			rows := fmt.Sprintf("%d", n)
			if n < 0 {
				rows = "missing"
			}
			tw.Append([]string{m.Table, m.Name, rows})
		}
		tw.Render()
		return nil
	},
}

func init() {
	countCmd.Flags().BoolVar(&flagCountJSON, "json", false, "Output JSON")
}
