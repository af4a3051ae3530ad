// Package main implements the taskflow server and its maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// envFile is an optional dotenv file applied before the environment is read.
	envFile string
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskflow",
	Short: "Personal task tracker backend",
	Long: `taskflow serves the task, category and account API, runs the
overdue digest worker and provisions new accounts.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (defaults to ./.env when present)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(provisionCmd)
}
