package main

import (
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "deskclaw",
	Short: "deskclaw is a desktop companion daemon",
	Long: `deskclaw runs perception adapters (screen, keyboard, voice), fuses
what they observe into context for a remote reasoning gateway, and drives an
avatar frontend and speech synthesis with the result.

  - start     Run the daemon (foreground or --daemon)
  - stop      Stop a running daemon
  - status    Check whether the daemon is running
  - models    Download and verify local model assets
  - version   Show version information`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "conf.yaml", "Configuration file path")
}
