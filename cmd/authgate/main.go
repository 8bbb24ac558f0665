package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "authgate",
		Short: "Token-gated authentication service",
		Long: `authgate issues signed bearer tokens, records every issued token in a
server-side registry and admits requests only when both the signature and
the registry record are valid.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := serveCmd()
	rootCmd.AddCommand(
		serve,
		purgeCmd(),
		migrateCmd(),
	)
	// Running the binary without a subcommand starts the server.
	rootCmd.RunE = serve.RunE

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
