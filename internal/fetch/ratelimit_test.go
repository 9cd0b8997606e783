package fetch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jonesrussell/north-cloud/mirror/internal/fetch"
	"github.com/jonesrussell/north-cloud/mirror/internal/fetch/mocks"
)

func TestRateLimitedReader_PassesThrough(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := mocks.NewMockReader(ctrl)
	inner.EXPECT().Read(gomock.Any(), "https://x.example/a", true).Return([]byte("a"), nil)

	r := fetch.NewRateLimitedReader(inner, 100, 1)
	body, err := r.Read(context.Background(), "https://x.example/a", true)
	require.NoError(t, err)
	assert.Equal(t, "a", string(body))
}

func TestRateLimitedReader_WaitHonoursContext(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := mocks.NewMockReader(ctrl)
	inner.EXPECT().Read(gomock.Any(), "https://x.example/a", false).Return([]byte("a"), nil).Times(1)

	// One token per minute: the second read cannot be served before the deadline.
	r := fetch.NewRateLimitedReader(inner, 1.0/60, 1)
	_, err := r.Read(context.Background(), "https://x.example/a", false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.Read(ctx, "https://x.example/a", false)
	require.Error(t, err)
}

func TestRateLimitedReader_HostsAreIndependent(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := mocks.NewMockReader(ctrl)
	inner.EXPECT().Read(gomock.Any(), gomock.Any(), false).Return([]byte("ok"), nil).Times(2)

	r := fetch.NewRateLimitedReader(inner, 1.0/60, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := r.Read(ctx, "https://one.example/a", false)
	require.NoError(t, err)
	_, err = r.Read(ctx, "https://two.example/a", false)
	require.NoError(t, err)
}
