package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/replbox/replbox/pkg/client"
)

var (
	baseURL string
	apiKey  string
)

var rootCmd = &cobra.Command{
	Use:   "rbx",
	Short: "replbox CLI - run Python code in isolated sandboxes",
	Long: `replbox CLI (rbx) is a command-line tool for the replbox code
execution service.

It provides commands to create sandboxes, execute Python code in them,
install packages, and move files in and out of the sandbox workspace.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getEnvOrDefault("REPLBOX_API_URL", "http://localhost:8000"), "replbox API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("REPLBOX_API_KEY"), "replbox API key")

	rootCmd.AddCommand(healthCmd)
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is up",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		status, err := c.Health(ctx)
		if err != nil {
			return fmt.Errorf("server unreachable: %w", err)
		}

		fmt.Println(status)
		return nil
	},
}
