package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jonesrussell/north-cloud/mirror/internal/fetch"
	"github.com/jonesrussell/north-cloud/mirror/internal/fetch/mocks"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedReader_SecondReadServedFromRedis(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := mocks.NewMockReader(ctrl)
	inner.EXPECT().Read(gomock.Any(), "https://x.example/a.css", false).Return([]byte("body{}"), nil).Times(1)

	mr, client := newRedis(t)
	r := fetch.NewCachedReader(inner, client, time.Hour, nil)

	for range 2 {
		body, err := r.Read(context.Background(), "https://x.example/a.css", false)
		require.NoError(t, err)
		assert.Equal(t, "body{}", string(body))
	}

	assert.True(t, mr.Exists(fetch.CacheKey("https://x.example/a.css", false)))
}

func TestCachedReader_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := mocks.NewMockReader(ctrl)
	failure := &fetch.HTTPError{URL: "https://x.example/gone", StatusCode: http.StatusNotFound}
	inner.EXPECT().Read(gomock.Any(), "https://x.example/gone", false).Return(nil, failure).Times(2)

	_, client := newRedis(t)
	r := fetch.NewCachedReader(inner, client, time.Hour, nil)

	for range 2 {
		_, err := r.Read(context.Background(), "https://x.example/gone", false)
		assert.ErrorIs(t, err, failure)
	}
}

func TestCachedReader_RedisDownFallsThrough(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := mocks.NewMockReader(ctrl)
	inner.EXPECT().Read(gomock.Any(), gomock.Any(), true).Return([]byte("live"), nil)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	r := fetch.NewCachedReader(inner, client, time.Hour, nil)
	body, err := r.Read(context.Background(), "https://x.example/", true)
	require.NoError(t, err)
	assert.Equal(t, "live", string(body))
}

func TestCacheKey_SeparatesScriptMode(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, fetch.CacheKey("https://x.example", false), fetch.CacheKey("https://x.example", true))
}

func robotsSource(robots string) fetch.ReaderFunc {
	return func(_ context.Context, url string, _ bool) ([]byte, error) {
		if url == "https://site.example/robots.txt" {
			if robots == "" {
				return nil, &fetch.HTTPError{URL: url, StatusCode: http.StatusNotFound}
			}
			return []byte(robots), nil
		}
		return []byte("content"), nil
	}
}

func TestRobotsReader_Disallows(t *testing.T) {
	t.Parallel()

	r := fetch.NewRobotsReader(robotsSource("User-agent: *\nDisallow: /private/\n"), "NorthCloud-Mirror/1.0", 0)

	_, err := r.Read(context.Background(), "https://site.example/private/a.png", false)
	require.ErrorIs(t, err, fetch.ErrDisallowed)

	body, err := r.Read(context.Background(), "https://site.example/public/a.png", false)
	require.NoError(t, err)
	assert.Equal(t, "content", string(body))
}

func TestRobotsReader_MissingRobotsAllowsAll(t *testing.T) {
	t.Parallel()

	r := fetch.NewRobotsReader(robotsSource(""), "NorthCloud-Mirror/1.0", 0)

	allowed, err := r.IsAllowed(context.Background(), "https://site.example/private/a.png")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRobotsReader_RejectsHostlessURL(t *testing.T) {
	t.Parallel()

	r := fetch.NewRobotsReader(robotsSource(""), "ua", 0)
	_, err := r.IsAllowed(context.Background(), "relative/path")
	require.Error(t, err)
	assert.False(t, errors.Is(err, fetch.ErrDisallowed))
}

func TestCollyReader_ReadsAndReportsStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>colly</body></html>"))
	}))
	t.Cleanup(srv.Close)

	r := fetch.NewCollyReader(fetch.CollyOptions{UserAgent: "test", Timeout: 5 * time.Second})

	for range 2 {
		body, err := r.Read(context.Background(), srv.URL+"/page", false)
		require.NoError(t, err)
		assert.Contains(t, string(body), "colly")
	}

	_, err := r.Read(context.Background(), srv.URL+"/missing", false)
	assert.Equal(t, http.StatusNotFound, fetch.StatusCode(err))
}
