// Package privacy removes credentials from URLs and messages before they are
// logged, reported or printed.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// urlPattern finds URLs of any scheme in text. Notification services use
// their own schemes (discord://, telegram://, smtp://) and brokers use
// tcp:// or ssl://, all of which may carry tokens.
var urlPattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://\S+`)

// ScrubMessage replaces every URL in message with its redacted form
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, RedactURL)
}

// RedactURL keeps the scheme, host and port of a URL and drops user info,
// path and query. Strings that do not parse are replaced by a short hash.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	if u.User != nil {
		b.WriteString("***@")
	}
	b.WriteString(u.Host)
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Opaque != "" {
		b.WriteString("/***")
	}
	return b.String()
}

// RedactSecret masks a configured secret for display
func RedactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
