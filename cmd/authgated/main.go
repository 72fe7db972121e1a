// Command authgated runs the authentication gateway HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "authgated",
		Short:         "Multi-strategy authentication gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment (default .env when present)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	return root
}

// loadEnvFile loads path into the process environment. Without a path a
// missing .env is not an error. Variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
