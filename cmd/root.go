package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/killallgit/tripwire/pkg/agent"
	"github.com/killallgit/tripwire/pkg/config"
	"github.com/killallgit/tripwire/pkg/headless"
	"github.com/killallgit/tripwire/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tripwire",
	Short: "Terminal client for a streaming reasoning agent",
	Long: `tripwire holds a conversation with a remote reasoning agent that streams
its answer as typed events (thinking, tool calls, tool results, answer
tokens). The stream survives transport faults: faulted connections are
reopened with exponential backoff without losing already-streamed content.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: logger init failed: %v\n", err)
		}
		defer logger.Close()

		prompt := viper.GetString("prompt")
		if prompt != "" {
			return runOnce(prompt)
		}
		return runInteractive()
	},
}

func runOnce(prompt string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if viper.GetBool("no_stream") {
		settings := config.Get()
		client := agent.NewClientWithTimeout(settings.Server.URL, settings.Server.Timeout)
		result, err := client.Query(ctx, prompt, settings.Chat.SessionID)
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("agent error: %s", result.Error)
		}
		fmt.Println(result.Response)
		return nil
	}

	return headless.RunHeadless(ctx, prompt)
}

func runInteractive() error {
	runner, err := headless.NewRunner()
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		runner.Disconnect()
	}()

	fmt.Println("Connected. Type a message, or 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		if err := runner.Run(ctx, line); err != nil {
			// The turn failed but the session stays usable; the user can
			// resubmit.
			logger.Error("turn failed: %v", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.tripwire/settings.yaml)")
	rootCmd.PersistentFlags().String("server", "", "agent backend base URL")
	rootCmd.PersistentFlags().String("session", "", "conversation session id")
	rootCmd.Flags().StringP("prompt", "p", "", "run a single prompt and exit")
	rootCmd.Flags().Bool("no-stream", false, "use the non-streaming chat endpoint")
	rootCmd.Flags().Bool("show-thinking", true, "display transient thinking tokens")

	viper.BindPFlag("server.url", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("chat.session_id", rootCmd.PersistentFlags().Lookup("session"))
	viper.BindPFlag("prompt", rootCmd.Flags().Lookup("prompt"))
	viper.BindPFlag("no_stream", rootCmd.Flags().Lookup("no-stream"))
	viper.BindPFlag("chat.show_thinking", rootCmd.Flags().Lookup("show-thinking"))
}

func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}
