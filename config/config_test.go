package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, 100.0, cfg.Game.WalletGrant)
	assert.Zero(t, cfg.Game.TurnInterval)
	assert.Equal(t, 60, cfg.Game.MissionDurationS)
	assert.Equal(t, 15*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, 72*time.Hour, cfg.Security.JWTTTLH)
	assert.Empty(t, cfg.Security.AdminIPs)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  admin_key: secret
game:
  turn_interval: 2m
  wallet_grant: 250
security:
  admin_ips: ["10.0.0.0/8", "127.0.0.1"]
`), 0o600))
	t.Setenv("FRACTURE_DATABASE_MODE", "mysql")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.AdminKey)
	assert.Equal(t, 2*time.Minute, cfg.Game.TurnInterval)
	assert.Equal(t, 250.0, cfg.Game.WalletGrant)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.Security.AdminIPs)
	assert.Equal(t, "mysql", cfg.Database.Mode)
	assert.Equal(t, "sk-test", cfg.Oracle.OpenAIAPIKey)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
