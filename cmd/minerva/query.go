package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wehubfusion/Minerva/internal/config"
	"github.com/wehubfusion/Minerva/pkg/research"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Run a single research query and print the report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		sessionID, _ := cmd.Flags().GetString("session")
		return runQuery(cmd.Context(), configPath, sessionID, strings.Join(args, " "))
	},
}

func init() {
	queryCmd.Flags().String("session", "", "Session ID to continue a conversation")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(ctx context.Context, configPath, sessionID, query string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := zap.NewNop()

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	svc, err := research.NewService(deps, research.Config{RunTimeout: cfg.Workflow.RunTimeout})
	if err != nil {
		return err
	}

	result, err := svc.Research(ctx, research.Request{SessionID: sessionID, Query: query})
	if err != nil {
		return err
	}

	fmt.Println(result.Report)
	fmt.Printf("\nsession: %s  run: %s\n", result.SessionID, result.RunID)
	if len(result.NodeErrors) > 0 {
		fmt.Println("degraded sources:")
		for node, msg := range result.NodeErrors {
			fmt.Printf("  %s: %s\n", node, msg)
		}
	}
	return nil
}
