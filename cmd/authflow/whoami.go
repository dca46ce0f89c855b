package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"authflow-go/internal/app"
	"authflow-go/internal/auth"
	"authflow-go/internal/config"
)

func newWhoamiCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Fetch the signed-in user's profile from the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			return runWhoami(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

func runWhoami(ctx context.Context, out io.Writer, cfg *config.Config) error {
	token, err := loadToken(ctx, cfg)
	if err != nil {
		return err
	}

	client := auth.NewProfileClient(cfg.API.BaseURL, cfg.API.ProfilePath, app.ClientOptions(cfg, slog.Default())...)
	profile, err := client.FetchProfile(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to fetch profile: %w", err)
	}

	fmt.Fprintf(out, "%s\n", displayName(profile))
	if profile.ID != "" {
		fmt.Fprintf(out, "id: %s\n", profile.ID)
	}
	return nil
}
