package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORAGE_DRIVER", "Memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	assert.Equal(t, 168*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 720*time.Hour, cfg.LobbyRetention)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, "@daily", cfg.CleanupSchedule)
	assert.False(t, cfg.MailEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := &Config{StorageDriver: StorageDriverPostgres, RateLimitRPS: 1, RateLimitBurst: 5}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "DATABASE_URL")

	cfg.StorageDriver = "mongo"
	assert.ErrorContains(t, cfg.Validate(), "STORAGE_DRIVER")
}

func TestAllowedOrigins(t *testing.T) {
	cfg := &Config{FrontendURL: "https://clanforge.app/"}
	assert.Equal(t, []string{"http://localhost:5173", "https://clanforge.app"}, cfg.AllowedOrigins())
	assert.Equal(t, []string{"http://localhost:5173"}, (&Config{}).AllowedOrigins())
}
