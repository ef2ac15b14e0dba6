package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/replbox/replbox/pkg/client"
	"github.com/replbox/replbox/pkg/types"
)

var execCmd = &cobra.Command{
	Use:   "exec <sandbox-id> <code>",
	Short: "Execute Python code in a sandbox",
	Long: `Execute Python code in a sandbox and print the output. Use - to
read the code from stdin.
Example: rbx exec abc123 "print(1 + 1)"
         cat script.py | rbx exec abc123 -`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sandboxID := args[0]
		code := args[1]

		// Read from stdin if code is "-"
		if code == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read from stdin: %w", err)
			}
			code = string(data)
		}

		c := client.NewClient(baseURL, apiKey)
		ctx := context.Background()
		if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		stream, _ := cmd.Flags().GetBool("stream")

		var rec *types.Execution
		var err error
		if stream {
			rec, err = c.ExecuteStream(ctx, sandboxID, code, func(ev types.StreamEvent) {
				switch ev.Type {
				case "stdout":
					fmt.Print(ev.Text)
				case "stderr":
					fmt.Fprint(cmd.ErrOrStderr(), ev.Text)
				case "result":
					if ev.Result != nil {
						printResult(*ev.Result)
					}
				case "error":
					if ev.Error != nil {
						for _, line := range ev.Error.Traceback {
							fmt.Fprintln(cmd.ErrOrStderr(), line)
						}
					}
				}
			})
		} else {
			rec, err = c.Execute(ctx, sandboxID, code)
		}
		if err != nil {
			return fmt.Errorf("failed to execute code: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := json.MarshalIndent(rec, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if !stream {
			printExecution(cmd, rec)
		}
		if rec.Error != nil {
			return fmt.Errorf("%s: %s", rec.Error.Name, rec.Error.Value)
		}
		return nil
	},
}

func printExecution(cmd *cobra.Command, rec *types.Execution) {
	for _, s := range rec.Stdout {
		fmt.Print(s)
	}
	for _, s := range rec.Stderr {
		fmt.Fprint(cmd.ErrOrStderr(), s)
	}
	for _, r := range rec.Results {
		printResult(r)
	}
	if rec.Error != nil {
		for _, line := range rec.Error.Traceback {
			fmt.Fprintln(cmd.ErrOrStderr(), line)
		}
	}
}

func printResult(r types.Result) {
	if s, ok := r.Data.(string); ok && r.Type == "text/plain" {
		fmt.Println(s)
		return
	}
	fmt.Printf("[%s output, use --json to inspect]\n", r.Type)
}

var installCmd = &cobra.Command{
	Use:   "install <sandbox-id> <package>",
	Short: "Install a package into a sandbox environment",
	Long: `Install a Python package into a sandbox's private environment.
Example: rbx install abc123 requests`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sandboxID := args[0]
		packageName := args[1]

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
		defer cancel()

		result, err := c.Install(ctx, sandboxID, packageName)
		if err != nil {
			return fmt.Errorf("failed to install package: %w", err)
		}

		if !result.Success {
			if result.Stderr != "" {
				fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
			}
			return fmt.Errorf("%s", result.Message)
		}

		fmt.Printf("✓ %s\n", result.Message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(installCmd)

	execCmd.Flags().Bool("json", false, "Output as JSON")
	execCmd.Flags().Bool("stream", false, "Stream output as it is produced")
	execCmd.Flags().Duration("timeout", 0, "Abort the execution after this long (0 means no limit)")
}
