package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/config"
)

type sample struct {
	Name    string        `env:"SAMPLE_NAME"    yaml:"name"`
	Workers int           `env:"SAMPLE_WORKERS" yaml:"workers"`
	Timeout time.Duration `env:"SAMPLE_TIMEOUT" yaml:"timeout"`
	Hosts   []string      `env:"SAMPLE_HOSTS"   yaml:"hosts"`
	Nested  struct {
		Enabled bool `env:"SAMPLE_ENABLED" yaml:"enabled"`
	} `yaml:"nested"`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoad_ReadsYAML(t *testing.T) {
	path := writeConfig(t, "name: mirror\nworkers: 3\ntimeout: 2s\nnested:\n  enabled: true\n")

	cfg, err := config.Load[sample](path)
	require.NoError(t, err)

	assert.Equal(t, "mirror", cfg.Name)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.True(t, cfg.Nested.Enabled)
}

func TestLoad_MissingFileUsesZeroValue(t *testing.T) {
	cfg, err := config.Load[sample](filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)

	assert.Empty(t, cfg.Name)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "name: [unterminated\n")

	_, err := config.Load[sample](path)
	assert.Error(t, err)
}

func TestLoadWithDefaults_EnvWinsOverDefaults(t *testing.T) {
	t.Setenv("SAMPLE_WORKERS", "9")
	t.Setenv("SAMPLE_HOSTS", "a.example, b.example")
	t.Setenv("SAMPLE_TIMEOUT", "750ms")

	path := writeConfig(t, "name: mirror\n")

	cfg, err := config.LoadWithDefaults(path, func(c *sample) {
		if c.Workers == 0 {
			c.Workers = 1
		}
		c.Name = "defaulted"
	})
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Workers)
	assert.Equal(t, "defaulted", cfg.Name)
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.Hosts)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "config.yml", config.GetConfigPath("config.yml"))

	t.Setenv("CONFIG_PATH", "/etc/mirror/config.yml")
	assert.Equal(t, "/etc/mirror/config.yml", config.GetConfigPath("config.yml"))
}

func TestValidateOneOf(t *testing.T) {
	t.Parallel()

	require.NoError(t, config.ValidateOneOf("archive.backend", "zip", "zip", "dir"))

	err := config.ValidateOneOf("archive.backend", "tar", "zip", "dir")
	var vErr *config.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "archive.backend", vErr.Field)
}
