// Package httpd implements the HTTP server command.
package httpd

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/mirror/cmd/common"
	infragin "github.com/jonesrussell/north-cloud/mirror/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/infrastructure/profiling"
	"github.com/jonesrussell/north-cloud/mirror/internal/api"
	"github.com/jonesrussell/north-cloud/mirror/internal/config"
)

const serviceName = "mirror"

// Command returns the httpd command.
func Command(deps *common.CommandDeps, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "httpd",
		Short: "Serve the mirror API",
		Long: `Starts an HTTP server exposing POST /api/v1/mirrors, the run history
under /api/v1/runs, /health and /metrics. Each request writes its own archive
under server.output_dir (or the configured object prefix for minio).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Start(cmd, *deps, version)
		},
	}
}

// Start runs the server until interrupted.
func Start(cmd *cobra.Command, deps common.CommandDeps, version string) error {
	if err := deps.Validate(); err != nil {
		return err
	}
	cfg, log := deps.Config, deps.Logger

	opts := common.RuntimeOptions{PerRun: true, ArchivePath: cfg.Server.OutputDir}
	if cfg.Archive.Backend == config.BackendMinIO {
		opts.ArchivePath = ""
	}
	rt, err := common.NewRuntime(cmd.Context(), deps, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			log.Warn("Failed to close backends", logger.Error(closeErr))
		}
	}()

	profiler, err := profiling.StartPyroscope(*cfg.Profiling, serviceName, version, log)
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := profiler.Stop(); stopErr != nil {
			log.Warn("Failed to stop profiler", logger.Error(stopErr))
		}
	}()

	var runs api.RunLister
	if rt.Runs != nil {
		runs = rt.Runs
	}
	handler := api.NewHandler(rt.Service, runs, log)

	serverCfg := &infragin.Config{
		Address:         cfg.Server.Address,
		Debug:           cfg.Server.Debug,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		ServiceName:     serviceName,
		ServiceVersion:  version,
	}
	server := infragin.NewServer(serverCfg, log, func(router *gin.Engine) {
		router.Use(rt.Metrics.GinMiddleware())
		infragin.RegisterHealthRoutes(router, serverCfg, rt.Checks)
		router.GET("/metrics", gin.WrapH(rt.Metrics.Handler()))
		handler.RegisterRoutes(router)
		if cfg.Profiling.Pprof {
			profiling.RegisterPprof(router)
		}
	})

	return server.RunWithGracefulShutdown(cmd.Context())
}
