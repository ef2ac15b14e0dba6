package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/replbox/replbox/pkg/client"
)

var sandboxCmd = &cobra.Command{
	Use:     "sandbox",
	Aliases: []string{"sb"},
	Short:   "Manage sandboxes",
	Long:    `Create, list, inspect, and close sandboxes.`,
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new sandbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		id, err := c.CreateSandbox(ctx)
		if err != nil {
			return fmt.Errorf("failed to create sandbox: %w", err)
		}

		fmt.Printf("✓ Sandbox created: %s\n", id)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all sandboxes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sandboxes, err := c.ListSandboxes(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sandboxes: %w", err)
		}

		if len(sandboxes) == 0 {
			fmt.Println("No sandboxes found")
			return nil
		}

		ids := make([]string, 0, len(sandboxes))
		for id := range sandboxes {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED")
		for _, id := range ids {
			fmt.Fprintf(w, "%s\t%s\n", id, sandboxes[id].CreatedAt.Format(time.RFC3339))
		}
		w.Flush()

		return nil
	},
}

var closeCmd = &cobra.Command{
	Use:     "close <sandbox-id>",
	Aliases: []string{"rm"},
	Short:   "Close a sandbox and release its resources",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sandboxID := args[0]

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.CloseSandbox(ctx, sandboxID); err != nil {
			return fmt.Errorf("failed to close sandbox: %w", err)
		}

		fmt.Printf("✓ Sandbox %s closed\n", sandboxID)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <sandbox-id>",
	Short: "Show a sandbox's execution history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sandboxID := args[0]

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		rows, err := c.Executions(ctx, sandboxID)
		if err != nil {
			return fmt.Errorf("failed to fetch history: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := json.MarshalIndent(rows, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(rows) == 0 {
			fmt.Println("No executions recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tKIND\tSTARTED\tDURATION\tOK\tDETAIL")
		for _, row := range rows {
			fmt.Fprintf(w, "%d\t%s\t%s\t%dms\t%t\t%s\n",
				row.Seq, row.Kind, row.StartedAt, row.DurationMS, row.OK, row.Detail)
		}
		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(sandboxCmd)

	sandboxCmd.AddCommand(createCmd)
	sandboxCmd.AddCommand(listCmd)
	sandboxCmd.AddCommand(closeCmd)
	sandboxCmd.AddCommand(historyCmd)

	historyCmd.Flags().Bool("json", false, "Output as JSON")
}
