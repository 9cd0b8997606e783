package profiling_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/infrastructure/profiling"
)

func TestRegisterPprof(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	profiling.RegisterPprof(router)

	for _, path := range []string{"/debug/pprof/", "/debug/pprof/goroutine?debug=1", "/debug/pprof/cmdline"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestStartPyroscope_DisabledWithoutURL(t *testing.T) {
	t.Parallel()

	p, err := profiling.StartPyroscope(profiling.Config{}, "mirror", "test", logger.NewNop())
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, p.Stop())
}
