package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"authflow-go/internal/app"
)

func newLogoutCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}

			store, closer, err := app.NewSessionStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}

			if err := store.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}
