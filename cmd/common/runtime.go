package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	infragin "github.com/jonesrussell/north-cloud/mirror/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/mirror/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/mirror/internal/archive"
	"github.com/jonesrussell/north-cloud/mirror/internal/config"
	"github.com/jonesrussell/north-cloud/mirror/internal/config/sites"
	"github.com/jonesrussell/north-cloud/mirror/internal/database"
	"github.com/jonesrussell/north-cloud/mirror/internal/metrics"
	"github.com/jonesrussell/north-cloud/mirror/internal/mirror"
)

// ErrHistoryDisabled is returned by commands that need the run database when
// none is configured.
var ErrHistoryDisabled = errors.New("run history requires a database (set DB_HOST)")

// RuntimeOptions select how archives are laid out.
type RuntimeOptions struct {
	// PerRun writes one archive per run, named after the run ID, under the
	// configured archive path.
	PerRun bool
	// ArchivePath overrides cfg.Archive.Path when set.
	ArchivePath string
}

// Runtime holds the collaborators of a mirror service.
type Runtime struct {
	Service  *mirror.Service
	Runs     *database.RunRepository
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Checks   map[string]infragin.PingFunc

	closers []func() error
}

// NewRuntime connects to the optional backends named in deps.Config and
// assembles a mirror service. Redis is optional: a failed connection only
// disables the response cache.
func NewRuntime(ctx context.Context, deps CommandDeps, opts RuntimeOptions) (*Runtime, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	cfg, log := deps.Config, deps.Logger

	rt := &Runtime{
		Registry: prometheus.NewRegistry(),
		Checks:   make(map[string]infragin.PingFunc),
	}
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.Metrics = metrics.New(rt.Registry)

	var cache redis.Cmdable
	if cfg.Redis.Enabled() {
		client, err := infraredis.NewClient(ctx, *cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable, response cache disabled", logger.Error(err))
		} else {
			cache = client
			rt.closers = append(rt.closers, client.Close)
			rt.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		}
	}

	var store mirror.RunStore
	if cfg.Database.Enabled() {
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.Runs = database.NewRunRepository(db)
		store = rt.Runs
		rt.closers = append(rt.closers, db.Close)
		rt.Checks["database"] = db.PingContext
	}

	writers, err := rt.writerFactory(ctx, cfg, opts, log)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	var rules *sites.Rules
	if cfg.Mirror.SitesFile != "" {
		rules, err = sites.Load(cfg.Mirror.SitesFile)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("load site rules: %w", err)
		}
		log.Info("Loaded site rules",
			logger.String("file", cfg.Mirror.SitesFile),
			logger.Int("count", rules.Len()))
	}

	rt.Service, err = mirror.NewService(cfg.Mirror, mirror.Deps{
		Reader:  mirror.NewReader(cfg.Fetch, cache, rt.Metrics, log),
		Writers: writers,
		Sites:   rules,
		Store:   store,
		Metrics: rt.Metrics,
		Logger:  log,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (rt *Runtime) writerFactory(
	ctx context.Context,
	cfg *config.Config,
	opts RuntimeOptions,
	log logger.Logger,
) (mirror.WriterFactory, error) {
	target := cfg.Archive.Path
	if opts.ArchivePath != "" {
		target = opts.ArchivePath
	}

	if cfg.Archive.Backend != config.BackendMinIO {
		return mirror.LocalWriters(cfg.Archive.Backend, target, opts.PerRun), nil
	}

	client, err := archive.NewMinIOClient(ctx, cfg.MinIO)
	if err != nil {
		return nil, err
	}
	bucket := cfg.MinIO.Bucket
	rt.Checks["minio"] = func(ctx context.Context) error {
		return bucketExists(ctx, client, bucket)
	}
	return mirror.MinIOWriters(client, cfg.MinIO, target, log), nil
}

func bucketExists(ctx context.Context, client *miniogo.Client, bucket string) error {
	ok, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", bucket)
	}
	return nil
}

// Close releases every backend connection.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
