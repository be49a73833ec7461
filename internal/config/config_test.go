package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/mnemosyne/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MNEMOSYNE_DB", filepath.Join(t.TempDir(), "m.db"))
	t.Setenv("MNEMOSYNE_USER", "alice")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, ":8010", cfg.Server.HTTPAddr)
	assert.Equal(t, "alice", cfg.Identity.User)
	assert.Equal(t, 200, cfg.Ranking.CompactMaxChars)
	assert.Equal(t, 2000, cfg.Ranking.DefaultMaxTokens)
	assert.Equal(t, 14*24*time.Hour, cfg.Ranking.HalfLife)
	assert.False(t, cfg.Auth.HeaderIdentity)

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, 1.4, p.KindWeights[model.KindDecision])
	assert.Equal(t, 0.8, p.WorkspaceMismatch)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MNEMOSYNE_DB_DRIVER", "Postgres")
	t.Setenv("MNEMOSYNE_POSTGRES_DSN", "postgres://localhost/mnemosyne?sslmode=disable")
	t.Setenv("MNEMOSYNE_HALF_LIFE", "72h")
	t.Setenv("MNEMOSYNE_KIND_WEIGHTS", "note=0.9")
	t.Setenv("MNEMOSYNE_COMPACT_MAX_CHARS", "120")
	t.Setenv("MNEMOSYNE_HEADER_IDENTITY", "true")
	t.Setenv("MNEMOSYNE_LOG_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 72*time.Hour, cfg.Ranking.HalfLife)
	assert.Equal(t, 120, cfg.CompactOptions().MaxChars)
	assert.True(t, cfg.Auth.HeaderIdentity)

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, 0.9, p.KindWeights[model.KindNote])
	assert.Equal(t, 1.4, p.KindWeights[model.KindDecision], "unlisted kinds keep their default")
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MNEMOSYNE_SPACE=team\nMNEMOSYNE_HTTP_ADDR=:9999\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("MNEMOSYNE_SPACE")
		os.Unsetenv("MNEMOSYNE_HTTP_ADDR")
	})
	t.Setenv("MNEMOSYNE_DB", filepath.Join(t.TempDir(), "m.db"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "team", cfg.Identity.Space)
	assert.Equal(t, ":9999", cfg.Server.HTTPAddr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"driver", map[string]string{"MNEMOSYNE_DB_DRIVER": "mysql"}, "MNEMOSYNE_DB_DRIVER"},
		{"postgres dsn", map[string]string{"MNEMOSYNE_DB_DRIVER": "postgres"}, "MNEMOSYNE_POSTGRES_DSN"},
		{"kind weights", map[string]string{"MNEMOSYNE_KIND_WEIGHTS": "todo=1"}, "MNEMOSYNE_KIND_WEIGHTS"},
		{"workspace order", map[string]string{"MNEMOSYNE_WORKSPACE_MISMATCH": "2"}, "workspace multipliers"},
		{"log level", map[string]string{"MNEMOSYNE_LOG_LEVEL": "loud"}, "MNEMOSYNE_LOG_LEVEL"},
		{"compact", map[string]string{"MNEMOSYNE_COMPACT_MAX_CHARS": "1"}, "MNEMOSYNE_COMPACT_MAX_CHARS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MNEMOSYNE_DB", filepath.Join(t.TempDir(), "m.db"))
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateHTTP(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.ValidateHTTP())

	cfg.Auth.JWTSecret = "short"
	assert.Error(t, cfg.ValidateHTTP())

	cfg.Auth.JWTSecret = strings.Repeat("s", MinSecretLen)
	assert.NoError(t, cfg.ValidateHTTP())

	assert.NoError(t, (&Config{Auth: AuthConfig{HeaderIdentity: true}}).ValidateHTTP())
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Log: LogConfig{Level: "warn", Format: "json"}}
	log := cfg.Logger(&buf)

	log.Info("hidden")
	log.Warn("shown", "k", "v")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}
