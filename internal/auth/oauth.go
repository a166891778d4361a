package auth

import (
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"ipg-server/internal/auth/providers"
	"ipg-server/internal/shared/config"
)

// ConfiguredProvider pairs a provider with whether its credentials are
// present. Unconfigured providers still get routes so clients receive a
// clear error.
type ConfiguredProvider struct {
	Provider   providers.OAuthProvider
	Configured bool
}

func InitOAuth() []ConfiguredProvider {
	cfg := config.GlobalConfig
	logger := slog.With("component", "oauth", "operation", "init")

	githubConfig := &oauth2.Config{
		ClientID:     cfg.OAuth.GitHub.ClientID,
		ClientSecret: cfg.OAuth.GitHub.ClientSecret,
		RedirectURL:  cfg.OAuth.GitHub.RedirectURL,
		Scopes:       cfg.OAuth.GitHub.Scopes,
		Endpoint:     github.Endpoint,
	}

	googleConfig := &oauth2.Config{
		ClientID:     cfg.OAuth.Google.ClientID,
		ClientSecret: cfg.OAuth.Google.ClientSecret,
		RedirectURL:  cfg.OAuth.Google.RedirectURL,
		Scopes:       cfg.OAuth.Google.Scopes,
		Endpoint:     google.Endpoint,
	}

	configured := []ConfiguredProvider{
		{Provider: providers.NewGitHubProvider(githubConfig), Configured: cfg.GitHubOAuthConfigured()},
		{Provider: providers.NewGoogleProvider(googleConfig), Configured: cfg.GoogleOAuthConfigured()},
	}

	for _, p := range configured {
		if !p.Configured {
			logger.Warn("OAuth provider not configured - missing client credentials", "provider", p.Provider.Name())
		}
	}
	logger.Info("OAuth configuration completed",
		"github_configured", configured[0].Configured,
		"google_configured", configured[1].Configured)

	return configured
}
