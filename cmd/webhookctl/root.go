package main

import (
	"github.com/spf13/cobra"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/config"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/store"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
)

type rootOptions struct {
	dbPath   string
	baseURL  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "webhookctl",
		Short:         "Manage sales agent channels and conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", cfg.SQLitePath, "path to the SQLite database")
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", cfg.PublicBaseURL, "public base URL used in webhook URLs")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(newChannelCmd(opts))
	cmd.AddCommand(newConversationCmd(opts))

	return cmd
}

// open returns the store and a logger; the caller closes the store.
func (o *rootOptions) open() (*store.SQLiteStore, *logger.Logger, error) {
	log, err := logger.NewConsole(o.logLevel)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.OpenSQLite(o.dbPath, log)
	if err != nil {
		return nil, nil, err
	}
	return st, log, nil
}
