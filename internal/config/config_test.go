package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "3333", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, time.Minute, cfg.NotifySweepInterval)
	assert.Equal(t, 2*time.Minute, cfg.NotifyClaimLease)
	assert.Equal(t, 3, cfg.TxMaxAttempts)
	assert.Equal(t, time.UTC, cfg.Location)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/fitquest")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("TX_MAX_ATTEMPTS", "5")
	t.Setenv("TIMEZONE", "Europe/Sofia")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 5, cfg.TxMaxAttempts)
	assert.Equal(t, "Europe/Sofia", cfg.Location.String())
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"postgres without url": {"STORE_BACKEND": "postgres", "DATABASE_URL": ""},
		"unknown backend":      {"STORE_BACKEND": "sqlite"},
		"bad duration":         {"STORE_BACKEND": "memory", "CACHE_TTL": "soon"},
		"bad attempts":         {"STORE_BACKEND": "memory", "TX_MAX_ATTEMPTS": "0"},
		"bad timezone":         {"STORE_BACKEND": "memory", "TIMEZONE": "Mars/Olympus"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
