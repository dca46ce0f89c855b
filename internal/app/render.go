package app

import (
	"encoding/json"
	"html/template"
	"net/http"

	"authflow-go/internal/auth"
	"authflow-go/internal/session"
)

// errorRedirectSeconds is how long the error page waits before returning
// to /login.
const errorRedirectSeconds = 3

type pageData struct {
	Message         string
	Profile         *auth.Profile
	Claims          *session.Claims
	RedirectSeconds int
}

var pages = template.Must(template.New("pages").Parse(`
{{define "header"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
{{- if .RedirectSeconds}}
<meta http-equiv="refresh" content="{{.RedirectSeconds}};url=/login">
{{- end}}
<title>Sign in</title>
</head>
<body>{{end}}

{{define "footer"}}</body>
</html>{{end}}

{{define "error"}}{{template "header" .}}
<h1>Sign-in failed</h1>
<p>{{.Message}}</p>
<p>Returning to the sign-in page in {{.RedirectSeconds}} seconds. <a href="/login">Try again now</a>.</p>
{{template "footer" .}}{{end}}

{{define "degraded"}}{{template "header" .}}
<h1>Signed in</h1>
<p>You are signed in, but your profile is unavailable right now: {{.Message}}</p>
<p><a href="/">Continue</a></p>
{{template "footer" .}}{{end}}

{{define "home"}}{{template "header" .}}
{{- if .Profile}}
<h1>Welcome, {{if .Profile.Name}}{{.Profile.Name}}{{else}}{{.Profile.Email}}{{end}}!</h1>
<p>{{.Profile.Email}}</p>
{{- else}}
<h1>Welcome!</h1>
<p>Your profile is unavailable: {{.Message}}</p>
{{- end}}
{{- with .Claims}}{{if .Scopes}}
<p>Scopes: {{range $i, $s := .Scopes}}{{if $i}}, {{end}}{{$s}}{{end}}</p>
{{- end}}{{end}}
<form method="post" action="/logout"><button type="submit">Sign out</button></form>
{{template "footer" .}}{{end}}
`))

func (a *Application) render(w http.ResponseWriter, status int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		a.Logger.Error("failed to render page", "page", name, "error", err)
	}
}

// renderError shows message and schedules a single return to /login.
func (a *Application) renderError(w http.ResponseWriter, status int, message string) {
	a.render(w, status, "error", pageData{Message: message, RedirectSeconds: errorRedirectSeconds})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
