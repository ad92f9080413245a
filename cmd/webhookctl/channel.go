package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/service"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/store"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/telegram"
)

func newChannelCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Connect, list and remove channels",
	}

	cmd.AddCommand(newChannelAddCmd(opts))
	cmd.AddCommand(newChannelListCmd(opts))
	cmd.AddCommand(newChannelRemoveCmd(opts))

	return cmd
}

func newChannelAddCmd(opts *rootOptions) *cobra.Command {
	var (
		tenantID string
		agentID  string
		typ      string
		secret   string
		botToken string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Connect a channel to an agent and print its webhook URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, log, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			svc := service.NewChannelService(st, telegram.NewRegistrar("", nil), nil, opts.baseURL, log)

			var ch *model.Channel
			if secret != "" {
				// Imported secret: store as-is, nothing to register upstream.
				ch = &model.Channel{
					TenantID:      tenantID,
					AgentID:       agentID,
					Type:          model.ChannelType(typ),
					WebhookSecret: secret,
					Status:        model.ChannelStatusActive,
				}
				if !ch.Type.Valid() {
					return fmt.Errorf("unsupported channel type %q", typ)
				}
				if err := st.CreateChannel(ctx, ch); err != nil {
					return err
				}
			} else {
				req := &model.ConnectChannelRequest{Type: model.ChannelType(typ)}
				if botToken != "" {
					req.Credentials = map[string]string{service.TelegramBotTokenKey: botToken}
				}
				resp, err := svc.Connect(ctx, tenantID, agentID, req)
				if err != nil {
					return err
				}
				ch = resp.Channel
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:      %s\n", ch.ID)
			fmt.Fprintf(out, "secret:  %s\n", ch.WebhookSecret)
			if url := svc.WebhookURL(ch); url != "" {
				fmt.Fprintf(out, "webhook: %s\n", url)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "owning tenant ID")
	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID")
	cmd.Flags().StringVar(&typ, "type", "", "channel type (telegram, whatsapp, phone, website, max)")
	cmd.Flags().StringVar(&secret, "secret", "", "use this webhook secret instead of generating one")
	cmd.Flags().StringVar(&botToken, "bot-token", "", "Telegram bot token")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("agent")
	cmd.MarkFlagRequired("type")

	return cmd
}

func newChannelListCmd(opts *rootOptions) *cobra.Command {
	var tenantID, agentID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			channels, err := st.FilterChannels(context.Background(), store.ChannelFilter{
				TenantID: tenantID,
				AgentID:  agentID,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTENANT\tAGENT\tTYPE\tSTATUS\tCREATED")
			for _, ch := range channels {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					ch.ID, ch.TenantID, ch.AgentID, ch.Type, ch.Status, ch.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "filter by tenant ID")
	cmd.Flags().StringVar(&agentID, "agent", "", "filter by agent ID")

	return cmd
}

func newChannelRemoveCmd(opts *rootOptions) *cobra.Command {
	var tenantID, agentID string

	cmd := &cobra.Command{
		Use:   "remove <channel-id>",
		Short: "Disconnect a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, log, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			svc := service.NewChannelService(st, telegram.NewRegistrar("", nil), nil, opts.baseURL, log)
			if err := svc.Disconnect(context.Background(), tenantID, agentID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "owning tenant ID")
	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("agent")

	return cmd
}
