package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gradreach/config"
)

func TestGoogleOAuthConfigReadsLoadedCredentials(t *testing.T) {
	old := config.AppConfig.Google
	t.Cleanup(func() { config.AppConfig.Google = old })

	// Credentials arrive after package init, the way LoadConfig sets them
	config.AppConfig.Google = config.OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/auth/google/callback",
	}

	cfg := googleOAuthConfig()
	assert.Equal(t, "client-id", cfg.ClientID)
	assert.Equal(t, "client-secret", cfg.ClientSecret)
	assert.Equal(t, "https://app.example.com/auth/google/callback", cfg.RedirectURL)

	config.AppConfig.Google.ClientID = "rotated-id"
	assert.Equal(t, "rotated-id", googleOAuthConfig().ClientID)
}
