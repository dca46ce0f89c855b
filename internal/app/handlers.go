package app

import (
	"context"
	"errors"
	"net/http"

	"authflow-go/internal/auth"
	"authflow-go/internal/metrics"
	"authflow-go/internal/session"
)

//
// Authentication Handlers
//

// handleLogin starts a flow attempt and sends the browser to the
// authorization server.
func (a *Application) handleLogin(w http.ResponseWriter, r *http.Request) {
	authURL, err := a.Authorizer.BeginFlow(r.Context(), a.flowConfig)
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "failed to start authorization flow", "error", err)
		a.renderError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.startCallback()
	http.Redirect(w, r, authURL, http.StatusSeeOther)
}

// handleAuthCallback completes the flow when the authorization server
// redirects back. Repeated requests for the same flow do no work and render
// the outcome of the first.
func (a *Application) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	cb := a.currentCallback()

	// Processing continues if the browser goes away mid-exchange.
	res, err := cb.Handle(context.WithoutCancel(r.Context()), auth.ParamsFromQuery(r.URL.Query()))
	if errors.Is(err, auth.ErrCallbackAlreadyHandled) {
		res, err = cb.Wait(r.Context())
		if err != nil {
			a.renderError(w, http.StatusServiceUnavailable, "sign-in is still in progress")
			return
		}
	} else {
		if res.Status == auth.StatusSucceeded {
			metrics.SessionsActive.Set(1)
		}
		a.reportLogin(res)
	}

	switch {
	case res.Status == auth.StatusFailed:
		a.renderError(w, statusFor(res.Err), res.Reason())
	case res.Degraded():
		a.render(w, http.StatusOK, "degraded", pageData{Message: res.ProfileErr.Error()})
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// handleLogout clears the session token.
func (a *Application) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Clear(r.Context()); err != nil {
		a.Logger.ErrorContext(r.Context(), "failed to clear session", "error", err)
		a.renderError(w, http.StatusInternalServerError, "failed to sign out")
		return
	}
	metrics.SessionsActive.Set(0)

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

//
// Application Handlers
//

type sessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	Subject       string         `json:"subject,omitempty"`
	Email         string         `json:"email,omitempty"`
	Name          string         `json:"name,omitempty"`
	Scopes        []string       `json:"scopes,omitempty"`
	Claims        map[string]any `json:"claims,omitempty"`
}

// handleSession reports whether a token is stored and what it claims.
// Claims are decoded without verification and are for display only.
func (a *Application) handleSession(w http.ResponseWriter, r *http.Request) {
	token, err := a.Sessions.Load(r.Context())
	if err != nil && !errors.Is(err, session.ErrNoToken) {
		a.Logger.ErrorContext(r.Context(), "failed to load session", "error", err)
	}

	resp := sessionResponse{Authenticated: err == nil && token != ""}
	if resp.Authenticated {
		if claims := session.DecodeClaims(token); claims != nil {
			resp.Subject = claims.Subject
			resp.Email = claims.Email
			resp.Name = claims.Name
			resp.Scopes = claims.Scopes
			resp.Claims = claims.Raw
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHome confirms the stored token against the API and greets the user.
func (a *Application) handleHome(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r.Context())
	if !ok {
		// This should not happen if the middleware is applied correctly.
		a.renderError(w, http.StatusInternalServerError, "could not identify session")
		return
	}

	data := pageData{Claims: session.DecodeClaims(token)}

	profile, err := a.Profiles.FetchProfile(r.Context(), token)
	var flowErr *auth.Error
	switch {
	case err == nil:
		data.Profile = profile
	case errors.As(err, &flowErr) && flowErr.Status == http.StatusUnauthorized:
		// The API no longer accepts the token.
		a.Logger.InfoContext(r.Context(), "stored token rejected, signing out")
		if err := a.Sessions.Clear(r.Context()); err != nil {
			a.Logger.ErrorContext(r.Context(), "failed to clear session", "error", err)
		}
		metrics.SessionsActive.Set(0)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	default:
		a.Logger.WarnContext(r.Context(), "profile unavailable", "error", err)
		data.Message = err.Error()
	}

	a.render(w, http.StatusOK, "home", data)
}

func (a *Application) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps a flow failure to the HTTP status of the error page.
func statusFor(err error) int {
	switch auth.KindOf(err) {
	case auth.KindSecurity, auth.KindProtocol:
		return http.StatusBadRequest
	case auth.KindProvider, auth.KindTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
