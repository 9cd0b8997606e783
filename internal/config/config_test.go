package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/mirror/internal/config"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	assert.Equal(t, "en", cfg.Mirror.Locale)
	assert.True(t, cfg.Mirror.FollowsLinks())
	assert.Equal(t, 1, cfg.Mirror.LeafConcurrency)
	assert.Equal(t, "rgb(153, 97, 137)", cfg.Mirror.Color)
	assert.Equal(t, config.BackendZip, cfg.Archive.Backend)
	assert.Equal(t, config.EngineHTTP, cfg.Fetch.Engine)
	assert.Equal(t, 3, cfg.Fetch.Retry.MaxAttempts)
	assert.False(t, cfg.Database.Enabled())
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yml")
	data := []byte(`
mirror:
  locale: es
  follow_links: false
  leaf_concurrency: 4
archive:
  backend: dir
  path: out
fetch:
  engine: colly
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "es", cfg.Mirror.Locale)
	assert.False(t, cfg.Mirror.FollowsLinks())
	assert.Equal(t, 4, cfg.Mirror.LeafConcurrency)
	assert.Equal(t, config.BackendDir, cfg.Archive.Backend)
	assert.Equal(t, "out", cfg.Archive.Path)
	assert.Equal(t, config.EngineColly, cfg.Fetch.Engine)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Archive.Backend = "tape"
	require.Error(t, cfg.Validate())
}

func TestValidate_MinIORequiresCredentials(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Archive.Backend = config.BackendMinIO
	require.Error(t, cfg.Validate())

	cfg.MinIO.AccessKey = "key"
	cfg.MinIO.SecretKey = "secret"
	require.NoError(t, cfg.Validate())
}

func TestApplyViper_OverridesExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	v := viper.New()
	v.Set("mirror.follow_links", false)
	v.Set("archive.path", "site.zip")
	v.Set("minio.bucket", "other")

	cfg.ApplyViper(v)

	assert.False(t, cfg.Mirror.FollowsLinks())
	assert.Equal(t, "site.zip", cfg.Archive.Path)
	assert.Equal(t, "other", cfg.MinIO.Bucket)
	assert.Equal(t, "en", cfg.Mirror.Locale)
}

func TestApplyViper_BackendSwitchResetsDefaultPath(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	v := viper.New()
	v.Set("archive.backend", config.BackendDir)
	cfg.ApplyViper(v)
	assert.Equal(t, "mirror", cfg.Archive.Path)

	cfg = config.Default()
	cfg.Archive.Path = "custom.zip"
	cfg.ApplyViper(v)
	assert.Equal(t, "custom.zip", cfg.Archive.Path)
}

func TestDefault_BreakerEnabled(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	assert.Equal(t, 5, cfg.Fetch.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.Fetch.BreakerCooldown)
}
