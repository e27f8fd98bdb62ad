package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newDocumentsCommand(ctx *commandContext) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			resp, err := client.Documents(cmd.Context(), status, limit)
			if err != nil {
				return err
			}
			if resp.Count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents found")
				return nil
			}
			rows := make([][]string, 0, len(resp.Documents))
			for _, doc := range resp.Documents {
				rows = append(rows, []string{
					shortID(doc.DocID),
					doc.Filename,
					doc.Title,
					strconv.Itoa(doc.PageCount),
					doc.Status,
					doc.IngestedAt,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Doc ID", "Filename", "Title", "Pages", "Status", "Ingested"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by document status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of documents to list")
	return cmd
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
