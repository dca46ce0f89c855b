package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"authflow-go/internal/app"
	"authflow-go/internal/config"
	"authflow-go/internal/session"
)

// maxClaimWidth truncates long claim values in status output.
const maxClaimWidth = 60

func newStatusCmd(root *rootOptions) *cobra.Command {
	var showAll bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a session token is stored",
		Long: `Show whether a session token is stored and what it claims.

Claims are decoded without verifying the token signature. They are shown
for information only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), cmd.OutOrStdout(), cfg, showAll)
		},
	}

	cmd.Flags().BoolVar(&showAll, "all", false, "show every decoded claim")
	return cmd
}

func runStatus(ctx context.Context, out io.Writer, cfg *config.Config, showAll bool) error {
	token, err := loadToken(ctx, cfg)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("KEY"), text.FgHiCyan.Sprint("VALUE")})
	t.AppendRow(table.Row{"authenticated", true})
	t.AppendRow(table.Row{"store", cfg.Session.Store})

	claims := session.DecodeClaims(token)
	if claims == nil {
		t.AppendRow(table.Row{"claims", "unavailable (opaque token)"})
		t.Render()
		return nil
	}

	t.AppendRow(table.Row{"subject", claims.Subject})
	t.AppendRow(table.Row{"email", claims.Email})
	t.AppendRow(table.Row{"name", claims.Name})
	t.AppendRow(table.Row{"scopes", strings.Join(claims.Scopes, " ")})

	if showAll {
		keys := make([]string, 0, len(claims.Raw))
		for k := range claims.Raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.AppendRow(table.Row{"claim." + k, truncateClaim(fmt.Sprintf("%v", claims.Raw[k]))})
		}
	}

	t.Render()
	return nil
}

// truncateClaim shortens v to maxClaimWidth runes.
func truncateClaim(v string) string {
	if utf8.RuneCountInString(v) <= maxClaimWidth {
		return v
	}
	return text.Trim(v, maxClaimWidth-3) + "..."
}

// loadToken reads the stored session token, failing with authRequiredError
// when there is none.
func loadToken(ctx context.Context, cfg *config.Config) (string, error) {
	store, closer, err := app.NewSessionStore(ctx, cfg)
	if err != nil {
		return "", err
	}
	if closer != nil {
		defer closer.Close()
	}

	token, err := store.Load(ctx)
	if errors.Is(err, session.ErrNoToken) {
		return "", authRequiredError{}
	}
	if err != nil {
		return "", err
	}
	return token, nil
}
