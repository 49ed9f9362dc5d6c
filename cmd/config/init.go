package configcmd

import (
	"fmt"
	"os"

	cfgpkg "github.com/flarebyte/datamove/internal/config"
	"github.com/flarebyte/datamove/internal/paths"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	flagOverwrite bool
	flagDryRun    bool
	// Server
	flagServerPort int
	flagGRPCPort   int
	flagAdminToken string
	// Postgres
	flagPGHost           string
	flagPGPort           int
	flagPGDBName         string
	flagPGSSLMode        string
	flagPGUser           string
	flagPGPasswordSecret string
	flagPGSchema         string
	// Vault
	flagVaultBackend string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or update the global config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := paths.EnsureHome(); err != nil {
			return err
		}
		path := cfgpkg.Path()
		if !flagOverwrite && !flagDryRun {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s (use --overwrite to replace)", path)
			}
		}

		// Start from existing config (or defaults if missing) to preserve secrets
		cfg, _ := cfgpkg.Load()

		set := cmd.Flags().Changed
		if set("server-port") {
			cfg.Server.Port = flagServerPort
		}
		if set("grpc-port") {
			cfg.Server.GRPCPort = flagGRPCPort
		}
		if set("admin-token") {
			cfg.Server.AdminToken = flagAdminToken
		}
		if set("pg-host") {
			cfg.Postgres.Host = flagPGHost
		}
		if set("pg-port") {
			cfg.Postgres.Port = flagPGPort
		}
		if set("pg-dbname") {
			cfg.Postgres.DBName = flagPGDBName
		}
		if set("pg-sslmode") {
			cfg.Postgres.SSLMode = flagPGSSLMode
		}
		if set("pg-user") {
			cfg.Postgres.User = flagPGUser
		}
		if set("pg-password-secret") {
			cfg.Postgres.PasswordSecret = flagPGPasswordSecret
		}
		if set("pg-schema") {
			cfg.Postgres.Schema = flagPGSchema
		}
		if set("vault-backend") {
			cfg.Vault.Backend = flagVaultBackend
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		b, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		if flagDryRun {
			os.Stdout.Write(b)
			fmt.Fprintf(os.Stderr, "dry-run: not writing %s\n", path)
			return nil
		}
		// may hold the admin token
		if err := os.WriteFile(path, b, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote config to %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&flagOverwrite, "overwrite", false, "Overwrite existing config.yaml if present")
	initCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Print merged config to stdout without writing")

	initCmd.Flags().IntVar(&flagServerPort, "server-port", cfgpkg.DefaultServerPort, "HTTP port")
	initCmd.Flags().IntVar(&flagGRPCPort, "grpc-port", cfgpkg.DefaultGRPCPort, "gRPC port")
	initCmd.Flags().StringVar(&flagAdminToken, "admin-token", "", "Bearer token required by the data API")

	initCmd.Flags().StringVar(&flagPGHost, "pg-host", "127.0.0.1", "Postgres host")
	initCmd.Flags().IntVar(&flagPGPort, "pg-port", cfgpkg.DefaultPostgresPort, "Postgres port")
	initCmd.Flags().StringVar(&flagPGDBName, "pg-dbname", "cityforge", "Postgres database name")
	initCmd.Flags().StringVar(&flagPGSSLMode, "pg-sslmode", "disable", "Postgres SSL mode")
	initCmd.Flags().StringVar(&flagPGUser, "pg-user", "cityforge", "Postgres user")
	initCmd.Flags().StringVar(&flagPGPasswordSecret, "pg-password-secret", "", "Vault secret holding the Postgres password")
	initCmd.Flags().StringVar(&flagPGSchema, "pg-schema", "public", "Postgres schema holding the CityForge tables")

	initCmd.Flags().StringVar(&flagVaultBackend, "vault-backend", "keychain", "Vault backend: keychain or env")
}
