// Package profiling exposes pprof handlers and starts Pyroscope continuous
// profiling for long-running commands.
package profiling

import (
	"fmt"
	"net/http/pprof"
	"os"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
)

const defaultEnvironment = "development"

// Config selects the profilers to enable. Everything is off by default.
type Config struct {
	// Pprof mounts /debug/pprof on the service router.
	Pprof bool `env:"ENABLE_PROFILING" yaml:"pprof"`
	// PyroscopeURL enables continuous profiling when set.
	PyroscopeURL string `env:"PYROSCOPE_SERVER_URL"  yaml:"pyroscope_url"`
	Environment  string `env:"PYROSCOPE_ENVIRONMENT" yaml:"environment"`
}

// RegisterPprof mounts the standard pprof handlers under /debug/pprof.
func RegisterPprof(router *gin.Engine) {
	g := router.Group("/debug/pprof")
	g.GET("/", gin.WrapF(pprof.Index))
	g.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	g.GET("/profile", gin.WrapF(pprof.Profile))
	g.GET("/symbol", gin.WrapF(pprof.Symbol))
	g.POST("/symbol", gin.WrapF(pprof.Symbol))
	g.GET("/trace", gin.WrapF(pprof.Trace))
	g.GET("/:profile", func(c *gin.Context) {
		pprof.Handler(c.Param("profile")).ServeHTTP(c.Writer, c.Request)
	})
}

// Profiler is a running Pyroscope session.
type Profiler struct {
	profiler *pyroscope.Profiler
}

// StartPyroscope starts continuous profiling. It returns a nil Profiler when
// cfg.PyroscopeURL is empty.
func StartPyroscope(cfg Config, serviceName, version string, log logger.Logger) (*Profiler, error) {
	if cfg.PyroscopeURL == "" {
		return nil, nil //nolint:nilnil // disabled is not an error
	}
	environment := cfg.Environment
	if environment == "" {
		environment = defaultEnvironment
	}

	appName := "north-cloud." + serviceName
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   cfg.PyroscopeURL,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Tags: map[string]string{
			"environment": environment,
			"version":     version,
			"hostname":    hostname(),
			"go_version":  runtime.Version(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start pyroscope profiler: %w", err)
	}

	log.Info("Continuous profiling started",
		logger.String("application", appName),
		logger.String("server", cfg.PyroscopeURL),
		logger.String("environment", environment))
	return &Profiler{profiler: profiler}, nil
}

// Stop flushes and stops the profiler. It is safe on a nil Profiler.
func (p *Profiler) Stop() error {
	if p == nil || p.profiler == nil {
		return nil
	}
	return p.profiler.Stop()
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
