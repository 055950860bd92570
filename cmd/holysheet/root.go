package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "holysheet",
	Short: "Upload catalog daemon for a remote document store",
	Long: `HolySheet keeps arbitrary uploads catalogued inside a remote document
store and serves a line-delimited JSON protocol for browsing them.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", envFile, err)
			}
			return
		}
		// Best effort: a .env in the working directory is optional.
		godotenv.Load()
	},
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "dotenv file to load before reading configuration")
}
