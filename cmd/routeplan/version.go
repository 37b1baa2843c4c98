package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"routeplan/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
