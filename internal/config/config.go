// Package config provides configuration helpers for kirana commands.
package config

import "os"

// Defaults for the voice daemon.
const (
	DefaultBackendURL    = "http://localhost:8000"
	DefaultLanguage      = "en"
	DefaultDashboardPort = "8181"
)

// BackendURL returns the storefront backend base URL from KIRANA_BACKEND_URL.
// Falls back to the default if not set.
func BackendURL() string {
	if url := os.Getenv("KIRANA_BACKEND_URL"); url != "" {
		return url
	}
	return DefaultBackendURL
}

// Language returns the conversation language tag from KIRANA_LANG.
// Supported values match the backend voice table (en, hi, te, ta, ...).
func Language() string {
	if lang := os.Getenv("KIRANA_LANG"); lang != "" {
		return lang
	}
	return DefaultLanguage
}

// DashboardPort returns the dashboard/bridge listen port from KIRANA_PORT.
func DashboardPort() string {
	if port := os.Getenv("KIRANA_PORT"); port != "" {
		return port
	}
	return DefaultDashboardPort
}
