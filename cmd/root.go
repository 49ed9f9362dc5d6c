package cmd

import (
	"os"

	configcmd "github.com/flarebyte/datamove/cmd/config"
	datacmd "github.com/flarebyte/datamove/cmd/data"
	dbcmd "github.com/flarebyte/datamove/cmd/db"
	srvcmd "github.com/flarebyte/datamove/cmd/server"
	vaultcmd "github.com/flarebyte/datamove/cmd/vault"
	cfgpkg "github.com/flarebyte/datamove/internal/config"
	"github.com/flarebyte/datamove/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:           "dmv",
	Short:         "Export, import and repair CityForge data in bulk",
	Long:          "dmv moves the whole CityForge dataset between PostgreSQL databases as a single JSON snapshot, and repairs id sequences afterwards.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A broken config is reported by the command itself; logging falls back to defaults.
		cfg, err := cfgpkg.Load()
		if err != nil {
			cfg = cfgpkg.Defaults()
		}
		level, format := cfg.Log.Level, cfg.Log.Format
		if flagLogLevel != "" {
			level = flagLogLevel
		}
		if flagLogFormat != "" {
			format = flagLogFormat
		}
		_, err = logging.Setup(os.Stderr, level, format)
		return err
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (defaults to config)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: text or json (defaults to config)")

	rootCmd.AddCommand(datacmd.DataCmd)
	rootCmd.AddCommand(dbcmd.DBCmd)
	rootCmd.AddCommand(srvcmd.ServerCmd)
	rootCmd.AddCommand(configcmd.ConfigCmd)
	rootCmd.AddCommand(vaultcmd.VaultCmd)
}
