package configcmd

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

var flagVerify bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration and report issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cfgpkg.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			return errors.New("configuration has problems")
		}
		if cfg.Server.AdminToken == "" {
			fmt.Fprintln(os.Stderr, "warning: server.admin_token is empty; the data API will refuse every request")
		}
		if cfg.Postgres.Password == "" && cfg.Postgres.PasswordSecret == "" {
			fmt.Fprintln(os.Stderr, "warning: no postgres password or password_secret configured")
		}

		if flagVerify {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			db, err := pgdao.Open(ctx, cfg)
			if err != nil {
				return fmt.Errorf("verify: cannot connect: %w", err)
			}
			defer db.Close()
			counts, err := pgdao.TableCounts(ctx, db, cfg.Postgres.Schema, pgdao.Tables())
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			missing := 0
			for _, t := range pgdao.Tables() {
				if counts[t] < 0 {
					missing++
					fmt.Fprintf(os.Stderr, "verify: table %s.%s is missing\n", cfg.Postgres.Schema, t)
				}
			}
			if missing > 0 {
				return fmt.Errorf("verify: %d tables missing; run dmv db scaffold", missing)
			}
			fmt.Fprintln(os.Stderr, "verify: connection ok, all tables present")
		}
		fmt.Fprintf(os.Stderr, "config ok (%s)\n", cfgpkg.Path())
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&flagVerify, "verify", false, "Also connect to Postgres and check the tables exist")
}
