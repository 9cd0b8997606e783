package mirror

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	infrahttp "github.com/jonesrussell/north-cloud/mirror/infrastructure/http"
	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/archive"
	"github.com/jonesrussell/north-cloud/mirror/internal/config"
	"github.com/jonesrussell/north-cloud/mirror/internal/config/minio"
	"github.com/jonesrussell/north-cloud/mirror/internal/fetch"
	"github.com/jonesrussell/north-cloud/mirror/internal/metrics"
)

const robotsCacheTTL = time.Hour

// WriterFactory opens the archive for one run and reports where it lives.
type WriterFactory func(ctx context.Context, runID string) (archive.Writer, string, error)

// LocalWriters writes zip or dir archives. With perRun set, target is a
// directory receiving one archive per run named after the run ID; otherwise
// every run writes to target itself.
func LocalWriters(backend, target string, perRun bool) WriterFactory {
	return func(_ context.Context, runID string) (archive.Writer, string, error) {
		location := target
		switch backend {
		case config.BackendZip:
			if perRun {
				location = filepath.Join(target, runID+".zip")
			}
			w, err := archive.NewZipWriter(location)
			if err != nil {
				return nil, "", err
			}
			return w, location, nil
		case config.BackendDir:
			if perRun {
				location = filepath.Join(target, runID)
			}
			w, err := archive.NewDirWriter(location)
			if err != nil {
				return nil, "", err
			}
			return w, location, nil
		default:
			return nil, "", fmt.Errorf("unsupported local archive backend %q", backend)
		}
	}
}

// MinIOWriters uploads each run under "<prefix>/<runID>/" in cfg.Bucket.
func MinIOWriters(client archive.ObjectPutter, cfg *minio.Config, prefix string, log logger.Logger) WriterFactory {
	return func(_ context.Context, runID string) (archive.Writer, string, error) {
		runPrefix := path.Join(prefix, runID)
		w := archive.NewMinIOWriter(client, cfg, runPrefix, log)
		return w, cfg.Bucket + "/" + runPrefix, nil
	}
}

// NewReader assembles the fetch chain described by cfg: the engine, then the
// per-host breaker, then robots.txt policy, then the Redis response cache.
// client and m may be nil.
func NewReader(cfg *config.FetchConfig, client redis.Cmdable, m *metrics.Metrics, log logger.Logger) fetch.Reader {
	if log == nil {
		log = logger.NewNop()
	}
	var reader fetch.Reader
	switch cfg.Engine {
	case config.EngineColly:
		reader = fetch.NewCollyReader(fetch.CollyOptions{
			UserAgent:    cfg.UserAgent,
			Timeout:      cfg.Timeout,
			MaxBodyBytes: int(cfg.MaxBodyBytes),
			CacheDir:     cfg.CacheDir,
			Logger:       log,
		})
	default:
		reader = fetch.NewHTTPReader(fetch.HTTPOptions{
			Client: infrahttp.NewClient(&infrahttp.ClientConfig{
				Timeout:            cfg.Timeout,
				UserAgent:          cfg.UserAgent,
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			}),
			Retry:        cfg.Retry,
			MaxBodyBytes: cfg.MaxBodyBytes,
			Logger:       log,
		})
	}

	if m != nil {
		reader = fetch.Instrument(reader, m.ObserveFetch)
	}
	if cfg.RateLimit > 0 {
		reader = fetch.NewRateLimitedReader(reader, cfg.RateLimit, cfg.RateBurst)
	}
	if cfg.BreakerThreshold > 0 {
		reader = fetch.NewBreakerReader(reader, fetch.BreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			Cooldown:         cfg.BreakerCooldown,
			OnStateChange: func(host string, from, to fetch.BreakerState) {
				log.Warn("Host circuit changed state",
					logger.String("host", host),
					logger.String("from", from.String()),
					logger.String("to", to.String()))
			},
		})
	}
	if cfg.RespectRobots {
		reader = fetch.NewRobotsReader(reader, cfg.UserAgent, robotsCacheTTL)
	}
	if client != nil && cfg.CacheTTL > 0 {
		reader = fetch.NewCachedReader(reader, client, cfg.CacheTTL, log)
	}
	return reader
}
