package common_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/mirror/cmd/common"
	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/config"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Archive.Backend = config.BackendDir
	cfg.Archive.Path = t.TempDir()
	return cfg
}

func TestNewRuntime_LocalWithRedis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	cfg := localConfig(t)
	cfg.Redis.Address = mr.Addr()

	rt, err := common.NewRuntime(context.Background(), common.CommandDeps{Config: cfg, Logger: logger.NewNop()},
		common.RuntimeOptions{PerRun: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.NotNil(t, rt.Service)
	assert.Nil(t, rt.Runs)
	require.Contains(t, rt.Checks, "redis")
	assert.NoError(t, rt.Checks["redis"](context.Background()))
	assert.NotContains(t, rt.Checks, "database")
}

func TestNewRuntime_RedisDownDisablesCache(t *testing.T) {
	t.Parallel()

	cfg := localConfig(t)
	cfg.Redis.Address = "127.0.0.1:1"

	rt, err := common.NewRuntime(context.Background(), common.CommandDeps{Config: cfg, Logger: logger.NewNop()},
		common.RuntimeOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.Empty(t, rt.Checks)
}

func TestNewRuntime_InvalidSitesFile(t *testing.T) {
	t.Parallel()

	cfg := localConfig(t)
	cfg.Mirror.SitesFile = filepath.Join(t.TempDir(), "sites.yml")
	require.NoError(t, os.WriteFile(cfg.Mirror.SitesFile, []byte("sites: [\n"), 0o600))

	_, err := common.NewRuntime(context.Background(), common.CommandDeps{Config: cfg, Logger: logger.NewNop()},
		common.RuntimeOptions{})
	require.Error(t, err)
}

func TestNewRuntime_RequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := common.NewRuntime(context.Background(), common.CommandDeps{}, common.RuntimeOptions{})
	require.ErrorIs(t, err, common.ErrLoggerRequired)

	_, err = common.NewRuntime(context.Background(), common.CommandDeps{Logger: logger.NewNop()}, common.RuntimeOptions{})
	require.ErrorIs(t, err, common.ErrConfigRequired)
}
