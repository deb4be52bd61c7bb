package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	for _, key := range []string{"DB_HOST", "DB_PORT", "SERVER_PORT", "ENV", "ALLOWED_ORIGINS", "IDENTITY_HEADER", "MAX_CONTENT_LENGTH", "PONG_WAIT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	req.NoError(err)

	req.Equal("localhost", cfg.DBHost)
	req.Equal("3306", cfg.DBPort)
	req.Equal("8080", cfg.ServerPort)
	req.Equal("development", cfg.Env)
	req.Equal([]string{"http://localhost:3000", "http://127.0.0.1:3000"}, cfg.AllowedOrigins)
	req.Equal("X-User-ID", cfg.IdentityHeader)
	req.Equal(4000, cfg.MaxContentLength)
	req.Equal(60*time.Second, cfg.PongWait)
	req.Equal(54*time.Second, cfg.PingInterval())
	req.False(cfg.IsProduction())
}

func TestLoad_OverridesAndTrimsOrigins(t *testing.T) {
	req := require.New(t)
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com , https://b.example.com")
	t.Setenv("ENV", "production")
	t.Setenv("WRITE_WAIT", "2s")

	cfg, err := Load()
	req.NoError(err)

	req.Equal([]string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	req.True(cfg.IsProduction())
	req.Equal(2*time.Second, cfg.WriteWait)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	req := require.New(t)
	t.Setenv("MAX_CONTENT_LENGTH", "0")

	_, err := Load()
	req.ErrorContains(err, "MAX_CONTENT_LENGTH")
}

func TestLoad_RejectsTooShortPongWait(t *testing.T) {
	req := require.New(t)
	t.Setenv("PONG_WAIT", "1ns")

	_, err := Load()
	req.ErrorContains(err, "PONG_WAIT")
}

func TestLoad_RejectsUnparsableDuration(t *testing.T) {
	req := require.New(t)
	t.Setenv("PONG_WAIT", "soon")

	_, err := Load()
	req.Error(err)
}
