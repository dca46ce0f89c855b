package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"authflow-go/internal/app"
	"authflow-go/internal/auth"
	"authflow-go/internal/config"
)

const defaultLoginTimeout = 5 * time.Minute

type loginOptions struct {
	timeout   time.Duration
	noBrowser bool
}

func newLoginCmd(root *rootOptions) *cobra.Command {
	opts := &loginOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser",
		Long: `Start the local host, open the browser at its /login page and wait for
the authorization server to redirect back.

Exit codes:
  0  signed in
  1  configuration or runtime error
  3  the authorization flow failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLogin(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.timeout, "timeout", defaultLoginTimeout, "how long to wait for the browser to complete sign-in")
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "print the sign-in URL instead of opening a browser")
	return cmd
}

func runLogin(ctx context.Context, out io.Writer, cfg *config.Config, opts *loginOptions) error {
	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(runCtx) }()

	loginURL, err := loginURLFor(cfg.Auth.RedirectURI)
	if err != nil {
		return err
	}

	if opts.noBrowser {
		fmt.Fprintf(out, "Open this URL to sign in:\n\n  %s\n\n", loginURL)
	} else if err := browser.OpenURL(loginURL); err != nil {
		fmt.Fprintf(out, "Could not open a browser (%v).\nOpen this URL to sign in:\n\n  %s\n\n", err, loginURL)
	} else {
		fmt.Fprintf(out, "Opened %s in your browser. Waiting for sign-in...\n", loginURL)
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, opts.timeout)
	defer cancelWait()

	var res auth.Result
	select {
	case err := <-runErr:
		if err == nil {
			err = errors.New("host stopped before sign-in completed")
		}
		return err
	case res = <-waitResult(waitCtx, application):
	}

	cancelRun()
	if err := <-runErr; err != nil {
		application.Logger.Warn("host shutdown failed", "error", err)
	}

	return reportLogin(out, res)
}

// waitResult adapts WaitForLogin to a channel so it can be raced with the host.
func waitResult(ctx context.Context, a *app.Application) <-chan auth.Result {
	ch := make(chan auth.Result, 1)
	go func() {
		res, err := a.WaitForLogin(ctx)
		if err != nil {
			res = auth.Result{
				Status: auth.StatusFailed,
				Err:    fmt.Errorf("no response from the browser: %w", err),
			}
		}
		ch <- res
	}()
	return ch
}

func reportLogin(out io.Writer, res auth.Result) error {
	switch {
	case res.Status != auth.StatusSucceeded:
		return &loginFailedError{reason: res.Reason()}
	case res.Degraded():
		fmt.Fprintf(out, "%s Signed in, but the profile is unavailable: %v\n", text.FgYellow.Sprint("!"), res.ProfileErr)
	case res.Profile != nil:
		fmt.Fprintf(out, "%s Signed in as %s\n", text.FgGreen.Sprint("✓"), displayName(res.Profile))
	default:
		fmt.Fprintf(out, "%s Signed in\n", text.FgGreen.Sprint("✓"))
	}
	return nil
}

func displayName(p *auth.Profile) string {
	switch {
	case p.Name != "" && p.Email != "":
		return fmt.Sprintf("%s <%s>", p.Name, p.Email)
	case p.Email != "":
		return p.Email
	case p.Name != "":
		return p.Name
	default:
		return p.ID
	}
}

// loginURLFor points at the host's /login on the origin of the redirect URI.
func loginURLFor(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI: %w", err)
	}
	u.Path = "/login"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
