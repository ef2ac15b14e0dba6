package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/replbox/replbox/pkg/client"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Move files in and out of a sandbox workspace",
	Long:  `Upload, download, and list files in a sandbox working directory.`,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <sandbox-id> <local-file>",
	Short: "Upload a local file into a sandbox",
	Long: `Upload a local file into a sandbox working directory.
Example: rbx files upload abc123 data.csv
         rbx files upload abc123 data.csv --to inputs/data.csv`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sandboxID := args[0]
		localPath := args[1]

		f, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", localPath, err)
		}
		defer f.Close()

		dest, _ := cmd.Flags().GetString("to")

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		written, err := c.Upload(ctx, sandboxID, filepath.Base(localPath), f, dest)
		if err != nil {
			return fmt.Errorf("failed to upload file: %w", err)
		}

		fmt.Printf("✓ Uploaded to %s\n", written)
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <sandbox-id> <path>",
	Short: "Download a file from a sandbox",
	Long: `Download a file from a sandbox working directory. The file is
written under its base name in the current directory; use -o to pick a
different name, or -o - to write to stdout.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sandboxID := args[0]
		remote := args[1]

		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = filepath.Base(remote)
		}

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		if out == "-" {
			return c.Download(ctx, sandboxID, remote, os.Stdout)
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		if err := c.Download(ctx, sandboxID, remote, f); err != nil {
			f.Close()
			return fmt.Errorf("failed to download file: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}

		fmt.Printf("✓ Downloaded %s to %s\n", remote, out)
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls <sandbox-id>",
	Short: "List files in a sandbox working directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sandboxID := args[0]

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		files, err := c.ListFiles(ctx, sandboxID)
		if err != nil {
			return fmt.Errorf("failed to list files: %w", err)
		}

		if len(files) == 0 {
			fmt.Println("(empty workspace)")
			return nil
		}

		longFormat, _ := cmd.Flags().GetBool("long")
		if longFormat {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, f := range files {
				fmt.Fprintf(w, "%d\t%s\n", f.Size, f.Path)
			}
			w.Flush()
		} else {
			for _, f := range files {
				fmt.Println(f.Path)
			}
		}

		return nil
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <sandbox-id>",
	Short: "Download the whole workspace as a tar.zst archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sandboxID := args[0]

		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = sandboxID + ".tar.zst"
		}

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		var w io.Writer
		var f *os.File
		if out == "-" {
			w = os.Stdout
		} else {
			var err error
			f, err = os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			w = f
		}

		if err := c.DownloadArchive(ctx, sandboxID, w); err != nil {
			if f != nil {
				f.Close()
			}
			return fmt.Errorf("failed to download archive: %w", err)
		}
		if f != nil {
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Printf("✓ Workspace archived to %s\n", out)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(filesCmd)

	filesCmd.AddCommand(uploadCmd)
	filesCmd.AddCommand(downloadCmd)
	filesCmd.AddCommand(lsCmd)
	filesCmd.AddCommand(archiveCmd)

	uploadCmd.Flags().String("to", "", "Destination path relative to the workspace root")
	downloadCmd.Flags().StringP("output", "o", "", "Local output file (- for stdout)")
	archiveCmd.Flags().StringP("output", "o", "", "Local output file (- for stdout)")
	lsCmd.Flags().BoolP("long", "l", false, "Use long listing format")
}
