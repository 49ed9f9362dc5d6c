package vaultcmd

import "github.com/spf13/cobra"

// VaultCmd is the root for `dmv vault` commands.
var VaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage secrets such as the Postgres password (macOS Keychain or environment)",
}

func init() {
	VaultCmd.AddCommand(setCmd)
	VaultCmd.AddCommand(showCmd)
	VaultCmd.AddCommand(unsetCmd)
}
