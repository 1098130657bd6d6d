// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tomtom215/whrelay/internal/auth"
	"github.com/tomtom215/whrelay/internal/config"
	"github.com/tomtom215/whrelay/internal/database"
	"github.com/tomtom215/whrelay/internal/deadletter"
)

// withDB loads config, opens storage, runs fn and closes storage.
func withDB(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, cfg *config.Config, db *database.DB) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	ctx := ctxOrBackground(cmd.Context())
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = db.Close() }()
	return fn(ctx, cfg, db)
}

func newTokensCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage ingress tokens",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List ingress tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, opts, func(ctx context.Context, _ *config.Config, db *database.DB) error {
				tokens, err := db.ListTokens(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "NAME\tTOKEN")
				for _, t := range tokens {
					_, _ = fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Token)
				}
				return tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "generate NAME",
		Short: "Create a token for NAME, or print the existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return withDB(cmd, opts, func(ctx context.Context, _ *config.Config, db *database.DB) error {
				if existing, ok, err := db.TokenForName(ctx, name); err != nil {
					return err
				} else if ok {
					printf(cmd, "%s already has a token: %s\n", name, existing)
					return nil
				}
				token, err := auth.GenerateToken()
				if err != nil {
					return err
				}
				if err := db.AddToken(ctx, token, name); err != nil {
					return err
				}
				printf(cmd, "%s\n", token)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke TOKEN",
		Short: "Delete an ingress token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, opts, func(ctx context.Context, _ *config.Config, db *database.DB) error {
				if err := db.RevokeToken(ctx, args[0]); err != nil {
					if errors.Is(err, database.ErrTokenNotFound) {
						return fmt.Errorf("token %q not found", args[0])
					}
					return err
				}
				printf(cmd, "revoked\n")
				return nil
			})
		},
	})
	return cmd
}

func newDBCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Storage maintenance",
	}
	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored record (tokens are kept)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			return withDB(cmd, opts, func(ctx context.Context, _ *config.Config, db *database.DB) error {
				if err := db.ClearData(ctx); err != nil {
					return err
				}
				printf(cmd, "cleared\n")
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	cmd.AddCommand(clearCmd)
	return cmd
}

func newDeadLetterCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deadletter",
		Short: "Inspect the dead-letter archive",
	}
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Show the newest archived failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if !cfg.DeadLetter.Enabled || cfg.DeadLetter.Path == "" {
				return errors.New("dead-letter archive is not enabled with a path")
			}
			store, err := deadletter.Open(cfg.DeadLetter)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.List(ctxOrBackground(cmd.Context()), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "CREATED\tSOURCE\tTARGET\tREASON")
			for _, e := range entries {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), e.Source, e.Target, e.Reason)
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", deadletter.DefaultListLimit, "maximum entries to show")
	cmd.AddCommand(list)
	return cmd
}
