package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"authflow-go/internal/config"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (bad configuration, I/O failure).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates no session token is stored.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the authorization flow failed.
	ExitCodeAuthFailed = 3
)

// authRequiredError is returned when a command needs a stored session.
type authRequiredError struct{}

func (authRequiredError) Error() string {
	return "not signed in; run 'authflow login'"
}

// loginFailedError carries the user-visible reason of a failed flow.
type loginFailedError struct {
	reason string
}

func (e *loginFailedError) Error() string {
	return "sign-in failed: " + e.reason
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "authflow",
		Short: "Sign in with OAuth 2.0 authorization code + PKCE",
		Long: `authflow runs a local host for the OAuth 2.0 authorization code flow
with PKCE, stores the issued access token and reports on the session.

Configuration comes from an optional JSON file (--config) overridden by
environment variables such as AUTH_SERVER_BASE_URL and AUTH_REDIRECT_URI.`,
		// Errors are printed once by execute.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a JSON config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newLoginCmd(opts),
		newStatusCmd(opts),
		newWhoamiCmd(opts),
		newLogoutCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// execute runs the command line and returns the process exit code.
func execute(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitCode(err)
	}
	return ExitCodeSuccess
}

// exitCode maps an error to a semantic exit code for scripting.
func exitCode(err error) int {
	var required authRequiredError
	if errors.As(err, &required) {
		return ExitCodeAuthRequired
	}

	var failed *loginFailedError
	if errors.As(err, &failed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}
