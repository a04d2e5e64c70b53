package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// GenerateRandomString returns a URL-safe opaque secret of n random bytes.
func GenerateRandomString(n int) string {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return base64.RawURLEncoding.EncodeToString(fmt.Appendf(nil, "fallback-%d", time.Now().UnixNano()))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func ParseCommaString(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func Capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// UsernameFromEmail derives a provisioning username from the local part of
// an email address, falling back to the provided default.
func UsernameFromEmail(email string, fallback string) string {
	local := strings.TrimSpace(strings.Split(email, "@")[0])
	local = strings.ToLower(local)
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		default:
			return -1
		}
	}, local)
	if cleaned == "" {
		return fallback
	}
	return cleaned
}

// GetCookieDomain extracts the hostname from the app URL for cookie scoping.
func GetCookieDomain(appURL string) (string, error) {
	parsed, err := url.Parse(appURL)
	if err != nil {
		return "", err
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("invalid app url %s", appURL)
	}
	return parsed.Hostname(), nil
}

// ScopeContains reports whether every requested scope is in the allowed set.
func ScopeContains(allowed []string, requested []string) bool {
	for _, scope := range requested {
		found := false
		for _, a := range allowed {
			if a == scope {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
