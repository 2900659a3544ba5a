package cmd

import (
	"context"
	"fmt"

	"github.com/killallgit/tripwire/pkg/agent"
	"github.com/killallgit/tripwire/pkg/config"
	"github.com/spf13/cobra"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Show the server-side conversation history for the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.Get()
		client := agent.NewClientWithTimeout(settings.Server.URL, settings.Server.Timeout)

		status, err := client.MemoryStatus(context.Background(), settings.Chat.SessionID)
		if err != nil {
			return err
		}

		fmt.Printf("session %s: %d messages\n", status.SessionID, status.MessageCount)
		for _, msg := range status.Messages {
			fmt.Printf("  %-10s %s\n", msg.Role+":", msg.Content)
		}
		return nil
	},
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the server-side conversation history for the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.Get()
		client := agent.NewClientWithTimeout(settings.Server.URL, settings.Server.Timeout)

		if err := client.ClearMemory(context.Background(), settings.Chat.SessionID); err != nil {
			return err
		}
		fmt.Printf("Memory cleared for session %s\n", settings.Chat.SessionID)
		return nil
	},
}

func init() {
	memoryCmd.AddCommand(memoryClearCmd)
	rootCmd.AddCommand(memoryCmd)
}
