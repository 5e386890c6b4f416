package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the minerva version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("minerva " + version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
