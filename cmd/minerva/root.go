package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "minerva",
	Short: "Minerva is an investment research workflow service",
	Long: `Minerva answers natural-language investment research queries by driving
them through a directed workflow of market data, sentiment, and retrieval
specialists, then synthesizing the findings into a reviewed report.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the YAML configuration file")
}
