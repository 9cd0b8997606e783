package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infrahttp "github.com/jonesrussell/north-cloud/mirror/infrastructure/http"
)

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	client := infrahttp.NewClient(nil)
	assert.Equal(t, infrahttp.DefaultTimeout, client.Timeout)
}

func TestNewClient_SetsUserAgent(t *testing.T) {
	t.Parallel()

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: time.Second, UserAgent: "mirror-test"})

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "mirror-test", got)
}
