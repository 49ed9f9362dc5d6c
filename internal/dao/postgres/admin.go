package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/flarebyte/datamove/internal/config"
	dbutil "github.com/flarebyte/datamove/internal/dao/dbutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func safeIdent(name string) (string, error) {
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid identifier: %q", name)
	}
	return name, nil
}

// quoteLiteral returns a SQL string literal with proper escaping for single quotes.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// OpenMaintenance connects to the "postgres" database with the configured
// credentials, for statements that cannot run inside the target database.
func OpenMaintenance(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	c := cfg
	c.Postgres.DBName = "postgres"
	c.Postgres.Schema = ""
	return Open(ctx, c)
}

// DatabaseExists checks if a database exists.
func DatabaseExists(ctx context.Context, db *pgxpool.Pool, name string) (bool, error) {
	if name == "" {
		return false, errors.New("empty db name")
	}
	var ok bool
	err := db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname=$1)", name).Scan(&ok)
	return ok, dbutil.ErrWrap("admin.database_exists", err, dbutil.ParamSummary("name", name))
}

// EnsureDatabase creates a database if it doesn't exist, with an optional owner.
// It reports whether the database was created.
func EnsureDatabase(ctx context.Context, db *pgxpool.Pool, dbName, owner string) (bool, error) {
	dn, err := safeIdent(dbName)
	if err != nil {
		return false, err
	}
	exists, err := DatabaseExists(ctx, db, dn)
	if err != nil || exists {
		return false, err
	}
	stmt := "CREATE DATABASE " + dn
	if owner != "" {
		ow, err := safeIdent(owner)
		if err != nil {
			return false, err
		}
		stmt += " OWNER " + ow
	}
	if _, err := db.Exec(ctx, stmt); err != nil {
		return false, dbutil.ErrWrap("admin.create_database", err, dbutil.ParamSummary("name", dbName))
	}
	return true, nil
}

// TableCounts returns the row count of each existing table among names.
// Missing tables are reported with -1.
func TableCounts(ctx context.Context, db *pgxpool.Pool, schema string, names []string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))
	for _, n := range names {
		var exists bool
		if err := db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, schema+"."+n).Scan(&exists); err != nil {
			return nil, dbutil.ErrWrap("admin.table_exists", err, dbutil.ParamSummary("table", n))
		}
		if !exists {
			out[n] = -1
			continue
		}
		var c int64
		if err := db.QueryRow(ctx, `SELECT count(*) FROM `+quoteIdent(schema, n)).Scan(&c); err != nil {
			return nil, dbutil.ErrWrap("admin.count", err, dbutil.ParamSummary("table", n))
		}
		out[n] = c
	}
	return out, nil
}
