package main

import (
	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List and manage tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		if err := apiGet("/tasks?only_open=true", &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var tasksCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a task complete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]string
		if err := apiPost("/tasks/"+args[0]+"/complete", nil, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	tasksCmd.AddCommand(tasksListCmd, tasksCompleteCmd)
}
