package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	cfgpkg "github.com/flarebyte/datamove/internal/config"
	pgdao "github.com/flarebyte/datamove/internal/dao/postgres"
	"github.com/spf13/cobra"
)

var (
	flagCreateDB bool
	flagYes      bool
)

var scaffoldCmd = &cobra.Command{
	Use:   "scaffold",
	Short: "Create the database (optional) and the CityForge tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cfgpkg.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if flagCreateDB && !flagYes {
			return errors.New("refusing to create a database without --yes; re-run with --yes to confirm")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if flagCreateDB {
			fmt.Fprintf(os.Stderr, "db:scaffold - connecting to maintenance database as %q...\n", cfg.Postgres.User)
			sysdb, err := pgdao.OpenMaintenance(ctx, cfg)
			if err != nil {
				return err
			}
			created, err := pgdao.EnsureDatabase(ctx, sysdb, cfg.Postgres.DBName, cfg.Postgres.User)
			sysdb.Close()
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(os.Stderr, "db:scaffold - created database %q\n", cfg.Postgres.DBName)
			} else {
				fmt.Fprintf(os.Stderr, "db:scaffold - database %q already exists\n", cfg.Postgres.DBName)
			}
		}

		fmt.Fprintf(os.Stderr, "db:scaffold - ensuring tables in schema %q...\n", cfg.Postgres.Schema)
		db, err := pgdao.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := pgdao.EnsureSchema(ctx, db, cfg.Postgres.Schema); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "db:scaffold - done (%d tables)\n", len(pgdao.Tables()))
		return nil
	},
}

func init() {
	scaffoldCmd.Flags().BoolVar(&flagCreateDB, "create-db", false, "Create the configured database if missing")
	scaffoldCmd.Flags().BoolVar(&flagYes, "yes", false, "Confirm structural changes")
}
