package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config carries environment-driven settings shared by the CLI and the
// callback function.
type Config struct {
	APIBaseURL     string
	PortalURL      string
	CredentialFile string
	PollInterval   time.Duration
	AuthDebounce   time.Duration
}

// Load reads configuration from the environment with usable defaults.
func Load() Config {
	return Config{
		APIBaseURL:     getenv("DUESPAY_API_BASE_URL", "https://api.duespay.app"),
		PortalURL:      getenv("DUESPAY_PORTAL_URL", "https://pay.duespay.app"),
		CredentialFile: getenv("DUESPAY_CREDENTIAL_FILE", defaultCredentialFile()),
		PollInterval:   getenvDuration("DUESPAY_POLL_INTERVAL", 10*time.Second),
		AuthDebounce:   getenvDuration("DUESPAY_AUTH_DEBOUNCE", 500*time.Millisecond),
	}
}

func defaultCredentialFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".duespay/token"
	}
	return filepath.Join(home, ".duespay", "token")
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
