package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the knowledge graph",
}

var graphStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print node/edge counts and the type histogram",
	RunE: func(cmd *cobra.Command, args []string) error {
		var stats map[string]any
		if err := apiGet("/graph/stats", &stats); err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var graphInspectCmd = &cobra.Command{
	Use:   "inspect <node-id>",
	Short: "Show a node and its edges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		if err := apiGet("/graph/inspect/"+args[0], &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var graphDeleteCmd = &cobra.Command{
	Use:   "deprecate <node-id>",
	Short: "Soft-delete (deprecate) a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]string
		if err := apiDelete("/graph/"+args[0], &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	graphCmd.AddCommand(graphStatsCmd, graphInspectCmd, graphDeleteCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("print response: %w", err)
	}
	return nil
}
