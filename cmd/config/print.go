package configcmd

import (
	"os"

	cfgpkg "github.com/flarebyte/datamove/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const masked = "********"

var printCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the merged configuration to stdout (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cfgpkg.Load()
		if err != nil {
			return err
		}
		if cfg.Postgres.Password != "" {
			cfg.Postgres.Password = masked
		}
		if cfg.Server.AdminToken != "" {
			cfg.Server.AdminToken = masked
		}
		b, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(b)
		return err
	},
}
