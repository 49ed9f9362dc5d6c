package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/flarebyte/datamove/internal/config"
	"github.com/flarebyte/datamove/internal/vault"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DSN builds a connection URL from the config with the given password.
func DSN(pg config.PostgresConfig, password string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   pg.Host + ":" + strconv.Itoa(pg.Port),
		Path:   "/" + pg.DBName,
	}
	if password != "" {
		u.User = url.UserPassword(pg.User, password)
	} else {
		u.User = url.User(pg.User)
	}
	q := url.Values{}
	q.Set("sslmode", pg.SSLMode)
	if pg.Schema != "" && pg.Schema != "public" {
		q.Set("search_path", pg.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Password returns the configured password, preferring the vault entry
// named by password_secret.
func Password(ctx context.Context, cfg config.Config) (string, error) {
	if cfg.Postgres.PasswordSecret == "" {
		return cfg.Postgres.Password, nil
	}
	b, err := vault.GetSecret(ctx, cfg.Vault.Backend, cfg.Postgres.PasswordSecret)
	if err != nil {
		return "", fmt.Errorf("postgres password from vault %q: %w", cfg.Vault.Backend, err)
	}
	return string(b), nil
}

// Open returns a pgx pool with sane defaults using the provided config.
func Open(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pass, err := Password(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pcfg, err := pgxpool.ParseConfig(DSN(cfg.Postgres, pass))
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	pcfg.MaxConns = 10
	pcfg.MinConns = 1
	pcfg.MaxConnLifetime = 30 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	// Ping to validate connectivity
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
