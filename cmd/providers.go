package cmd

import (
	"context"
	"fmt"

	"github.com/killallgit/tripwire/pkg/agent"
	"github.com/killallgit/tripwire/pkg/config"
	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the backend's LLM providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.Get()
		client := agent.NewClientWithTimeout(settings.Server.URL, settings.Server.Timeout)

		providers, err := client.Providers(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("current: %s (default: %s)\n", providers.CurrentProvider, providers.DefaultProvider)
		for _, name := range providers.AvailableProviders {
			status := "not configured"
			if providers.ConfiguredProviders[name] {
				status = "configured"
			}
			fmt.Printf("  %-16s %s\n", name, status)
		}
		return nil
	},
}

var providersSwitchCmd = &cobra.Command{
	Use:   "switch <provider>",
	Short: "Switch the backend's active LLM provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.Get()
		client := agent.NewClientWithTimeout(settings.Server.URL, settings.Server.Timeout)

		// Switching mid-conversation would silently change the model the
		// history was built against; the backend refuses it too.
		status, err := client.MemoryStatus(context.Background(), settings.Chat.SessionID)
		if err == nil && status.MessageCount > 0 {
			return fmt.Errorf("session %q has an active conversation; clear memory before switching providers", settings.Chat.SessionID)
		}

		if err := client.SwitchProvider(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Switched to %s\n", args[0])
		return nil
	},
}

func init() {
	providersCmd.AddCommand(providersSwitchCmd)
	rootCmd.AddCommand(providersCmd)
}
