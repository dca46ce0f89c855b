// Package auth implements the OAuth 2.0 authorization code flow with PKCE for
// a public client.
//
// # Flow
//
//   - Authorizer.BeginFlow generates a PKCE verifier/challenge and a CSRF
//     state token, stores them as the single live Attempt in a FlowStore and
//     returns the authorization URL.
//   - The host sends the browser there and later receives the redirect.
//   - Callback.Handle validates the redirect, exchanges the code through a
//     TokenClient, clears the attempt, saves the token and confirms it by
//     fetching the user profile.
//
// A Callback carries a one-shot latch: the host may invoke Handle more than
// once for the same redirect, and only the first invocation does any work.
//
// # Errors
//
// Every flow failure is an *Error with a Kind (configuration, security,
// protocol, transient, provider). Transient failures are detected from the
// transport error chain, never from message text, and are retried once.
package auth
