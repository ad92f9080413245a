package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/store"
)

func newConversationCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Inspect conversations",
	}

	cmd.AddCommand(newConversationListCmd(opts))
	cmd.AddCommand(newConversationShowCmd(opts))

	return cmd
}

func newConversationListCmd(opts *rootOptions) *cobra.Command {
	var (
		agentID string
		status  string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !model.ConversationStatus(status).Valid() {
				return fmt.Errorf("invalid status %q", status)
			}

			st, _, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			convs, err := st.FilterConversations(context.Background(), store.ConversationFilter{
				AgentID: agentID,
				Status:  model.ConversationStatus(status),
				Limit:   limit,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tAGENT\tCHANNEL\tCUSTOMER\tSTATUS\tMESSAGES\tUPDATED")
			for _, c := range convs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					c.ID, c.AgentID, c.Channel, c.CustomerPhone, c.Status, len(c.Messages), c.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "filter by agent ID")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active, completed, transferred)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of conversations")

	return cmd
}

func newConversationShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print a conversation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			conv, err := st.GetConversation(context.Background(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(conv)
		},
	}
}
