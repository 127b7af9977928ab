package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadWithNoConfigPathReturnsDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.ListenPort)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoadFromMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/path.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.ListenPort)
}

func TestLoadFromYAMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
server:
  listen_port: 9000
database:
  driver: postgres
  name: openmemory_prod
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.ListenPort)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "openmemory_prod", cfg.Database.Name)
}

func TestLoadFromEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen_port: 9000\n"), 0o644))

	t.Setenv("OPENMEMORY_SERVER_LISTEN_PORT", "7070")
	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.ListenPort)
}

func TestWithValidatorRunsOnLoad(t *testing.T) {
	called := false
	_, err := NewLoader().WithValidator(func(c *Config) error {
		called = true
		return nil
	}).Load()
	require.NoError(t, err)
	assert.True(t, called)
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.ListenPort = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingSectorLambda(t *testing.T) {
	cfg := DefaultConfig()
	delete(cfg.HSG.SectorLambda, "episodic")
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadAuthMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.Mode = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestDatabaseConfigDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Contains(t, pg.DSN(), "host=db")

	sq := DatabaseConfig{Driver: "sqlite", Name: "file.db"}
	assert.Equal(t, "file.db", sq.DSN())

	unknown := DatabaseConfig{Driver: "mysql"}
	assert.Equal(t, "", unknown.DSN())
}
