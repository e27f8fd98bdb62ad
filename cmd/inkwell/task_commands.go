package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <file>...",
		Short: "Submit files for conversion and indexing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			paths := make([]string, 0, len(args))
			for _, arg := range args {
				abs, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", arg, err)
				}
				paths = append(paths, abs)
			}
			resp, err := client.ProcessDocuments(cmd.Context(), paths)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted %d file(s) as task %s\n", len(paths), resp.TaskID)
			return nil
		},
	}
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file and submit it for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer file.Close()
			resp, err := client.Upload(cmd.Context(), args[0], file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded to %s, task %s\n", resp.Path, resp.TaskID)
			return nil
		},
	}
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the upload directory for new files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			resp, err := client.Scan(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scan submitted as task %s\n", resp.TaskID)
			return nil
		},
	}
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var oldOnly bool
	var maxAgeDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove task output directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			var resp submitResponse
			if oldOnly {
				resp, err = client.CleanupOld(cmd.Context(), maxAgeDays)
			} else {
				resp, err = client.CleanupAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleanup submitted as task %s\n", resp.TaskID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&oldOnly, "old", false, "Only remove task directories older than the retention age")
	cmd.Flags().IntVar(&maxAgeDays, "days", 0, "Retention age in days (with --old; 0 uses the configured default)")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			for {
				status, err := client.TaskStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printTaskStatus(cmd, status)
				if !watch || status.State == "succeeded" || status.State == "failed" {
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(2 * time.Second):
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until the task reaches a terminal state")
	return cmd
}

func printTaskStatus(cmd *cobra.Command, status taskStatus) {
	rows := [][]string{
		{"ID", status.ID},
		{"Kind", status.Kind},
		{"Queue", status.Queue},
		{"State", status.State},
	}
	if status.CreatedAt > 0 {
		rows = append(rows, []string{"Created", formatMillis(status.CreatedAt)})
	}
	if status.StartedAt > 0 {
		rows = append(rows, []string{"Started", formatMillis(status.StartedAt)})
	}
	if status.CompletedAt > 0 {
		rows = append(rows, []string{"Completed", formatMillis(status.CompletedAt)})
	}
	if status.LastError != "" {
		rows = append(rows, []string{"Error", status.LastError})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
	if len(status.Result) > 0 {
		var pretty map[string]any
		if err := json.Unmarshal(status.Result, &pretty); err == nil {
			encoded, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Fprintln(out, string(encoded))
		}
	}
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the daemon is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if err := client.Health(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon is healthy")
			return nil
		},
	}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format(time.RFC3339)
}
