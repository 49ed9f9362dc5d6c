package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flarebyte/datamove/internal/paths"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServerPort    = 53061
	DefaultGRPCPort      = 53062
	DefaultPostgresPort  = 5432
	DefaultConfirmPhrase = "DELETE ALL DATA"
)

type ServerConfig struct {
	Port       int    `yaml:"port" validate:"gt=0,lte=65535"`
	GRPCPort   int    `yaml:"grpc_port" validate:"gt=0,lte=65535,nefield=Port"`
	AdminToken string `yaml:"admin_token,omitempty"`
}

type PostgresConfig struct {
	Host    string `yaml:"host" validate:"required"`
	Port    int    `yaml:"port" validate:"gt=0,lte=65535"`
	DBName  string `yaml:"dbname" validate:"required"`
	SSLMode string `yaml:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	User    string `yaml:"user" validate:"required"`
	// Password is used as-is; PasswordSecret names a vault entry and wins when set.
	Password       string `yaml:"password,omitempty"`
	PasswordSecret string `yaml:"password_secret,omitempty"`
	Schema         string `yaml:"schema" validate:"required"`
}

type MigrationConfig struct {
	ConfirmPhrase        string `yaml:"confirm_phrase" validate:"required"`
	LockFile             string `yaml:"lock_file"`
	ReconcileAfterImport *bool  `yaml:"reconcile_after_import,omitempty"`
}

// Reconcile reports whether sequences are repaired after every import.
func (m MigrationConfig) Reconcile() bool {
	return m.ReconcileAfterImport == nil || *m.ReconcileAfterImport
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type VaultConfig struct {
	Backend string `yaml:"backend" validate:"omitempty,oneof=keychain env"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Migration MigrationConfig `yaml:"migration"`
	Log       LogConfig       `yaml:"log"`
	Vault     VaultConfig     `yaml:"vault"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: DefaultServerPort, GRPCPort: DefaultGRPCPort},
		Postgres: PostgresConfig{
			Host:    "127.0.0.1",
			Port:    DefaultPostgresPort,
			DBName:  "cityforge",
			SSLMode: "disable",
			User:    "cityforge",
			Schema:  "public",
		},
		Migration: MigrationConfig{ConfirmPhrase: DefaultConfirmPhrase, LockFile: paths.ImportLock()},
		Log:       LogConfig{Level: "info", Format: "text"},
		Vault:     VaultConfig{Backend: "keychain"},
	}
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config { return defaults() }

// Path returns the expected path to the config.yaml file.
func Path() string {
	return filepath.Join(paths.Home(), "config.yaml")
}

// Load reads configuration from config.yaml if it exists.
// Missing file is not an error; defaults are returned.
func Load() (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(b, &fileCfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	merge(&cfg, fileCfg)
	return cfg, nil
}

// merge overrides defaults with provided values if non-zero.
func merge(cfg *Config, f Config) {
	if f.Server.Port != 0 {
		cfg.Server.Port = f.Server.Port
	}
	if f.Server.GRPCPort != 0 {
		cfg.Server.GRPCPort = f.Server.GRPCPort
	}
	if f.Server.AdminToken != "" {
		cfg.Server.AdminToken = f.Server.AdminToken
	}
	if f.Postgres.Host != "" {
		cfg.Postgres.Host = f.Postgres.Host
	}
	if f.Postgres.Port != 0 {
		cfg.Postgres.Port = f.Postgres.Port
	}
	if f.Postgres.DBName != "" {
		cfg.Postgres.DBName = f.Postgres.DBName
	}
	if f.Postgres.SSLMode != "" {
		cfg.Postgres.SSLMode = f.Postgres.SSLMode
	}
	if f.Postgres.User != "" {
		cfg.Postgres.User = f.Postgres.User
	}
	if f.Postgres.Password != "" {
		cfg.Postgres.Password = f.Postgres.Password
	}
	if f.Postgres.PasswordSecret != "" {
		cfg.Postgres.PasswordSecret = f.Postgres.PasswordSecret
	}
	if f.Postgres.Schema != "" {
		cfg.Postgres.Schema = f.Postgres.Schema
	}
	if f.Migration.ConfirmPhrase != "" {
		cfg.Migration.ConfirmPhrase = f.Migration.ConfirmPhrase
	}
	if f.Migration.LockFile != "" {
		cfg.Migration.LockFile = f.Migration.LockFile
	}
	if f.Migration.ReconcileAfterImport != nil {
		cfg.Migration.ReconcileAfterImport = f.Migration.ReconcileAfterImport
	}
	if f.Log.Level != "" {
		cfg.Log.Level = strings.ToLower(f.Log.Level)
	}
	if f.Log.Format != "" {
		cfg.Log.Format = strings.ToLower(f.Log.Format)
	}
	if f.Vault.Backend != "" {
		cfg.Vault.Backend = f.Vault.Backend
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the merged configuration and lists every problem found.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s fails %q", fieldPath(fe.Namespace()), fe.Tag()))
	}
	return errors.New(strings.Join(problems, "; "))
}

// fieldPath turns Config.Postgres.DBName into postgres.dbname.
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.ToLower(strings.Join(parts, "."))
}
