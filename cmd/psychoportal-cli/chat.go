package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send one message to /chat and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := args[0]
		for _, a := range args[1:] {
			message += " " + a
		}
		var resp struct {
			Response string `json:"response"`
		}
		if err := apiPost("/chat", map[string]string{"message": message}, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Response)
		return nil
	},
}
