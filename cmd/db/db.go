package db

import (
	"github.com/spf13/cobra"
)

var DBCmd = &cobra.Command{
	Use:   "db",
	Short: "Prepare and inspect the CityForge database",
}

func init() {
	DBCmd.AddCommand(scaffoldCmd)
	DBCmd.AddCommand(countCmd)
}
