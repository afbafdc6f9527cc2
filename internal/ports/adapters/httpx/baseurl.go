// Package httpx holds shared plumbing for the HTTP-backed adapters: base URL
// hygiene and response redaction.
package httpx

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeBaseURL trims whitespace and trailing slashes, substituting def
// when the value is empty.
func NormalizeBaseURL(baseURL, def string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = def
	}
	return strings.TrimRight(baseURL, "/")
}

// ValidateBaseURL rejects URLs that could leak credentials or bypass TLS.
// Plain http is tolerated only for loopback hosts, where self-hosted engines
// (LibreTranslate, local synthesis) commonly listen.
func ValidateBaseURL(name, baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid %s base URL: %w", name, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid %s base URL %q: absolute URL with host is required", name, baseURL)
	}
	if u.User != nil {
		return fmt.Errorf("invalid %s base URL %q: userinfo is not allowed", name, baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid %s base URL %q: query and fragment are not allowed", name, baseURL)
	}

	host := strings.ToLower(u.Hostname())
	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if !isLoopback(host) {
			return fmt.Errorf("invalid %s base URL %q: https is required for non-local hosts", name, baseURL)
		}
	default:
		return fmt.Errorf("invalid %s base URL %q: unsupported scheme", name, baseURL)
	}
	return nil
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// Truncate bounds error bodies surfaced to logs.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RedactSecret removes an API key from text destined for logs or errors.
func RedactSecret(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "[redacted]")
}
