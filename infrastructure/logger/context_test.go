package logger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
)

func TestWithContext_FromContext_RoundTrip(t *testing.T) {
	t.Parallel()

	stored := mustTestLogger(t)
	ctx := logger.WithContext(context.Background(), stored)

	assert.Same(t, stored, logger.FromContext(ctx, nil))
}

func TestFromContext_NoLogger_ReturnsFallback(t *testing.T) {
	t.Parallel()

	fallback := mustTestLogger(t)

	assert.Same(t, fallback, logger.FromContext(context.Background(), fallback))
}

func TestFromContext_NilFallbackIsUsable(t *testing.T) {
	t.Parallel()

	got := logger.FromContext(context.Background(), nil)
	require.NotNil(t, got)

	got.Info("info message", logger.String("key", "value"))
	assert.NoError(t, got.Sync())
}

func TestWithContext_OverwritesPrevious(t *testing.T) {
	t.Parallel()

	first := mustTestLogger(t)
	second := mustTestLogger(t)

	ctx := logger.WithContext(context.Background(), first)
	ctx = logger.WithContext(ctx, second)

	assert.Same(t, second, logger.FromContext(ctx, nil))
}

func TestNew_ConsoleFormat(t *testing.T) {
	t.Parallel()

	l, err := logger.New(logger.Config{Level: "debug", Format: logger.FormatConsole})
	require.NoError(t, err)

	l.With(logger.String("component", "test")).Debug("console logger works")
}

func mustTestLogger(t *testing.T) logger.Logger {
	t.Helper()

	l, err := logger.New(logger.Config{Level: "error", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)

	return l
}
