package main

import (
	"github.com/spf13/cobra"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "psychoportal-cli",
	Short: "Command-line client for a running psychoportald daemon",
	Long:  `psychoportal-cli talks HTTP to a running psychoportald instance: send chat messages, inspect the knowledge graph, and list or complete tasks without a browser.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "http://localhost:8085", "psychoportald base URL")
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(tasksCmd)
}
