package cmd

import (
	"context"
	"fmt"

	"github.com/killallgit/tripwire/pkg/agent"
	"github.com/killallgit/tripwire/pkg/config"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the agent backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.Get()
		client := agent.NewClientWithTimeout(settings.Server.URL, settings.Server.Timeout)

		status, err := client.Health(context.Background())
		if err != nil {
			return fmt.Errorf("backend unreachable at %s: %w", settings.Server.URL, err)
		}
		fmt.Printf("%s: %s\n", status.Status, status.Message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
