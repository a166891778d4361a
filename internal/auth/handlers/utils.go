package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"ipg-server/internal/shared/config"
)

// resolveRedirectURI accepts a client-supplied redirect only when it
// points at the configured frontend.
func resolveRedirectURI(requested string) string {
	frontend := strings.TrimRight(config.GlobalConfig.Frontend.URL, "/")
	if requested == "" {
		return frontend
	}

	want, err := url.Parse(frontend)
	if err != nil {
		return frontend
	}
	got, err := url.Parse(requested)
	if err != nil || got.Scheme != want.Scheme || got.Host != want.Host {
		return frontend
	}
	return strings.TrimRight(requested, "/")
}

func redirectWithError(w http.ResponseWriter, r *http.Request, redirectURI, errorType string) {
	if redirectURI == "" {
		redirectURI = strings.TrimRight(config.GlobalConfig.Frontend.URL, "/")
	}
	errorURL := fmt.Sprintf("%s/auth/error?error=%s", redirectURI, url.QueryEscape(errorType))
	http.Redirect(w, r, errorURL, http.StatusTemporaryRedirect)
}

// truncateName shortens a provider profile name to the display name limit.
func truncateName(name string, max int) string {
	runes := []rune(strings.TrimSpace(name))
	if len(runes) > max {
		runes = runes[:max]
	}
	return string(runes)
}
