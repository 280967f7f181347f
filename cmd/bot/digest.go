package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"booking_notification_bot/internal/infra/config"
)

func newDigestCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Compute today's digest once and send it to every configured chat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			rt, err := bootstrap(ctx, func(*config.AppConfig) bool { return false })
			if err != nil {
				return err
			}
			defer rt.db.Close()

			if dryRun {
				text, err := rt.digest.Compose(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			}
			return rt.digest.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the digest instead of sending it")
	return cmd
}
