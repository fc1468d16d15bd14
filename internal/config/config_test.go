package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.Equal(t, "https://api.duespay.app", cfg.APIBaseURL)
	require.Equal(t, "https://pay.duespay.app", cfg.PortalURL)
	require.NotEmpty(t, cfg.CredentialFile)
	require.Equal(t, 10*time.Second, cfg.PollInterval)
	require.Equal(t, 500*time.Millisecond, cfg.AuthDebounce)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DUESPAY_API_BASE_URL", "http://localhost:8000")
	t.Setenv("DUESPAY_POLL_INTERVAL", "2s")
	t.Setenv("DUESPAY_AUTH_DEBOUNCE_SECONDS", "1")

	cfg := Load()
	require.Equal(t, "http://localhost:8000", cfg.APIBaseURL)
	require.Equal(t, 2*time.Second, cfg.PollInterval)
	require.Equal(t, time.Second, cfg.AuthDebounce)
}
