// Blazer is a game backend for Blaze-protocol clients: accounts, sessions,
// lobbies and matchmaking over a binary RPC protocol, with an HTTP status
// surface and MQTT telemetry alongside.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time.
var version = "dev"

const banner = `
  ____  _
 | __ )| | __ _ _______ _ __
 |  _ \| |/ _' |_  / _ \ '__|
 | |_) | | (_| |/ /  __/ |
 |____/|_|\__,_/___\___|_|   v%s
`

func main() {
	var configDir string

	rootCmd := &cobra.Command{
		Use:           "blazer",
		Short:         "Blaze-protocol game backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", "config", "directory holding config.json")

	rootCmd.AddCommand(
		serveCmd(&configDir),
		accountCmd(&configDir),
		certCmd(&configDir),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "blazer %s\n", version)
		},
	}
}
