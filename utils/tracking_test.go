package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradreach/config"
)

func setTrackingConfig(t *testing.T, appURL, key string) {
	t.Helper()
	oldURL, oldKey := config.AppConfig.AppURL, config.AppConfig.EncryptionKey
	config.AppConfig.AppURL = appURL
	config.AppConfig.EncryptionKey = key
	t.Cleanup(func() {
		config.AppConfig.AppURL = oldURL
		config.AppConfig.EncryptionKey = oldKey
	})
}

func TestTrackingTokenRoundTrip(t *testing.T) {
	setTrackingConfig(t, "https://app.example.com", "secret")

	token := GenerateTrackingToken("abc@gradreach.app")
	assert.Len(t, token, 20)
	assert.True(t, ValidateTrackingToken("abc@gradreach.app", token))
	assert.False(t, ValidateTrackingToken("other@gradreach.app", token))
	assert.False(t, ValidateTrackingToken("abc@gradreach.app", ""))
}

func TestTrackingTokenDependsOnKey(t *testing.T) {
	setTrackingConfig(t, "", "secret-one")
	first := GenerateTrackingToken("abc")

	config.AppConfig.EncryptionKey = "secret-two"
	assert.NotEqual(t, first, GenerateTrackingToken("abc"))
}

func TestBuildHTMLBody(t *testing.T) {
	setTrackingConfig(t, "https://app.example.com/", "secret")

	html := BuildHTMLBody("Hello <Professor>,\nSecond line", "<msg-1@gradreach.app>")
	require.NotEmpty(t, html)
	assert.Contains(t, html, "Hello &lt;Professor&gt;,<br>")
	assert.Contains(t, html, "https://app.example.com/track/open/msg-1@gradreach.app/")
	assert.Contains(t, html, `width="1" height="1"`)
}

func TestBuildHTMLBodyWithoutBaseURL(t *testing.T) {
	setTrackingConfig(t, "", "secret")
	assert.Empty(t, BuildHTMLBody("Hello", "<msg-1@gradreach.app>"))
}
