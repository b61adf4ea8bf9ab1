package httpapi

import (
	"fmt"
	"strings"
)

const (
	defaultListenAddr  = ":8080"
	defaultWebhookPath = "/topgg/webhook"
)

// Config aggregates runtime settings for the HTTP server.
type Config struct {
	ListenAddr string
	// WebhookPath is the route top.gg delivers vote callbacks to.
	WebhookPath string
	// WebhookAuthorization is the shared secret expected verbatim in the
	// Authorization header of webhook deliveries; empty disables the check.
	WebhookAuthorization string
	AllowedOrigins       []string
}

// Validate ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.WebhookPath = defaultIfEmpty(cfg.WebhookPath, defaultWebhookPath)
	if !strings.HasPrefix(cfg.WebhookPath, "/") {
		return fmt.Errorf("webhook path must start with a slash")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
