package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"gradreach/config"
)

// GenerateTrackingToken derives a verifiable token for a message so the
// open-tracking endpoint can reject forged requests without state.
func GenerateTrackingToken(messageID string) string {
	hash := sha256.Sum256([]byte(messageID + config.AppConfig.EncryptionKey))
	return base64.URLEncoding.EncodeToString(hash[:])[:20]
}

// ValidateTrackingToken checks a token produced by GenerateTrackingToken
func ValidateTrackingToken(messageID, token string) bool {
	return token != "" && GenerateTrackingToken(messageID) == token
}

// GenerateTrackingPixelURL generates a tracking pixel URL for email opens
func GenerateTrackingPixelURL(baseURL, messageID string) string {
	return fmt.Sprintf("%s/track/open/%s/%s", baseURL, messageID, GenerateTrackingToken(messageID))
}

// BuildHTMLBody renders a plain-text email body as minimal HTML with an
// open-tracking pixel appended. Returns "" when no tracking base URL is
// configured so the mail goes out text-only.
func BuildHTMLBody(textBody, messageID string) string {
	baseURL := strings.TrimRight(config.AppConfig.AppURL, "/")
	if baseURL == "" || messageID == "" {
		return ""
	}

	escaped := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	).Replace(textBody)
	html := strings.ReplaceAll(escaped, "\n", "<br>\n")

	// Strip angle brackets from the Message-ID for a clean URL segment
	id := strings.Trim(messageID, "<>")
	pixelURL := GenerateTrackingPixelURL(baseURL, id)
	pixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`, pixelURL)

	return "<html><body>" + html + "\n" + pixel + "</body></html>"
}
