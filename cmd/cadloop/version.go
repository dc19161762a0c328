package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/cadloop"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of cadloop",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cadloop version %s\n", strings.TrimSpace(cadloop.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
