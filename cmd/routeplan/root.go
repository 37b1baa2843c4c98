package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"routeplan/internal/logging"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:              "routeplan",
	Short:            "Capacitated vehicle route planning service",
	SilenceUsage:     true,
	PersistentPreRun: loadDotEnv,
}

// loadDotEnv reads an optional .env; real environment variables win.
func loadDotEnv(cmd *cobra.Command, args []string) {
	if err := godotenv.Load(); err == nil {
		logging.New("main").Debug().Msg("loaded .env")
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "routeplan.yaml", "configuration file (yaml or json)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }
