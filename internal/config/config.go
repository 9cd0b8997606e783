// Package config provides configuration management for the mirror service.
// Values come from a YAML file, then environment variables, then command-line
// flags bound through viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	infraconfig "github.com/jonesrussell/north-cloud/mirror/infrastructure/config"
	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/infrastructure/profiling"
	infraredis "github.com/jonesrussell/north-cloud/mirror/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/mirror/infrastructure/retry"
	dbconfig "github.com/jonesrussell/north-cloud/mirror/internal/config/database"
	"github.com/jonesrussell/north-cloud/mirror/internal/config/minio"
)

// DefaultConfigPath is used when neither --config nor CONFIG_PATH is given.
const DefaultConfigPath = "config.yml"

// Archive backends.
const (
	BackendZip   = "zip"
	BackendDir   = "dir"
	BackendMinIO = "minio"
)

// Fetch engines.
const (
	EngineHTTP  = "http"
	EngineColly = "colly"
)

// Interface exposes each configuration section.
type Interface interface {
	GetMirrorConfig() *MirrorConfig
	GetFetchConfig() *FetchConfig
	GetArchiveConfig() *ArchiveConfig
	GetMinIOConfig() *minio.Config
	GetRedisConfig() *infraredis.Config
	GetDatabaseConfig() *dbconfig.Config
	GetServerConfig() *ServerConfig
	GetLoggingConfig() *logger.Config
	Validate() error
}

var _ Interface = (*Config)(nil)

// Config represents the application configuration.
type Config struct {
	Mirror    *MirrorConfig      `yaml:"mirror"`
	Fetch     *FetchConfig       `yaml:"fetch"`
	Archive   *ArchiveConfig     `yaml:"archive"`
	MinIO     *minio.Config      `yaml:"minio"`
	Redis     *infraredis.Config `yaml:"redis"`
	Database  *dbconfig.Config   `yaml:"database"`
	Server    *ServerConfig      `yaml:"server"`
	Logging   *logger.Config     `yaml:"logging"`
	Profiling *profiling.Config  `yaml:"profiling"`
}

// MirrorConfig controls how documents are rewritten.
type MirrorConfig struct {
	Locale string `env:"MIRROR_LOCALE" yaml:"locale"`
	// FollowLinks mirrors linked sub-pages. Nil means true.
	FollowLinks *bool `yaml:"follow_links"`
	LoadScripts bool  `env:"MIRROR_LOAD_SCRIPTS" yaml:"load_scripts"`
	// PartialNotice prepends a notice to sub-pages that needed fallbacks.
	PartialNotice bool `yaml:"partial_notice"`
	// Color is used for fallback headers and buttons.
	Color string `yaml:"color"`
	// LeafConcurrency bounds parallel leaf prefetching. 1 keeps runs sequential.
	LeafConcurrency int      `env:"MIRROR_LEAF_CONCURRENCY" yaml:"leaf_concurrency"`
	Omit            []string `yaml:"omit"`
	MainArea        string   `yaml:"main_area"`
	Readability     bool     `yaml:"readability"`
	// SitesFile holds per-host rules.
	SitesFile string          `env:"MIRROR_SITES_FILE" yaml:"sites_file"`
	Slideshow SlideshowConfig `yaml:"slideshow"`
	// Locales overrides or extends the built-in message tables.
	Locales map[string]map[string]string `yaml:"locales"`
}

// SlideshowConfig enables the slideshow handler for the listed hosts.
type SlideshowConfig struct {
	Hosts         []string `yaml:"hosts"`
	ImageSelector string   `yaml:"image_selector"`
	Source        string   `yaml:"source"`
}

// FollowsLinks resolves the FollowLinks default.
func (m *MirrorConfig) FollowsLinks() bool {
	return m.FollowLinks == nil || *m.FollowLinks
}

// FetchConfig controls the fetch primitive.
type FetchConfig struct {
	Engine             string        `env:"FETCH_ENGINE"         yaml:"engine"`
	UserAgent          string        `env:"FETCH_USER_AGENT"     yaml:"user_agent"`
	Timeout            time.Duration `env:"FETCH_TIMEOUT"        yaml:"timeout"`
	RespectRobots      bool          `env:"FETCH_RESPECT_ROBOTS" yaml:"respect_robots"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	MaxBodyBytes       int64         `yaml:"max_body_bytes"`
	// CacheTTL enables the Redis response cache when positive.
	CacheTTL time.Duration `env:"FETCH_CACHE_TTL" yaml:"cache_ttl"`
	// CacheDir is colly's on-disk response cache.
	CacheDir string       `yaml:"cache_dir"`
	Retry    retry.Config `yaml:"retry"`
	// BreakerThreshold is the number of consecutive failures that stops reads
	// from a host for BreakerCooldown. Negative disables the breaker.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	// RateLimit caps reads per second to one host. Zero disables it.
	RateLimit float64 `env:"FETCH_RATE_LIMIT" yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// ArchiveConfig selects where artifacts are written.
type ArchiveConfig struct {
	Backend string `env:"ARCHIVE_BACKEND" yaml:"backend"`
	// Path is the zip file or directory. For minio it is the object prefix.
	Path string `env:"ARCHIVE_PATH" yaml:"path"`
}

// ServerConfig holds HTTP server settings for the httpd command.
type ServerConfig struct {
	Address         string        `env:"SERVER_ADDRESS" yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Debug           bool          `env:"APP_DEBUG" yaml:"debug"`
	// OutputDir holds archives produced through the API.
	OutputDir string `env:"SERVER_OUTPUT_DIR" yaml:"output_dir"`
}

// Defaults.
const (
	defaultLocale           = "en"
	defaultColor            = "rgb(153, 97, 137)"
	defaultLeafConcurrency  = 1
	defaultSlideSelector    = "img"
	defaultUserAgent        = "NorthCloud-Mirror/1.0"
	defaultFetchTimeout     = 30 * time.Second
	defaultMaxBodyBytes     = 200 << 20
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultServerAddress    = ":8080"
	defaultReadTimeout      = 30 * time.Second
	defaultWriteTimeout     = 10 * time.Minute
	defaultIdleTimeout      = 60 * time.Second
	defaultShutdownTimeout  = 30 * time.Second
	defaultOutputDir        = "archives"
)

var defaultArchivePaths = map[string]string{
	BackendZip:   "mirror.zip",
	BackendDir:   "mirror",
	BackendMinIO: "mirrors",
}

// Load loads configuration from path.
func Load(path string) (*Config, error) {
	cfg, err := infraconfig.LoadWithDefaults[Config](path, setDefaults)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration built only from defaults.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Mirror == nil {
		cfg.Mirror = &MirrorConfig{}
	}
	if cfg.Fetch == nil {
		cfg.Fetch = &FetchConfig{}
	}
	if cfg.Archive == nil {
		cfg.Archive = &ArchiveConfig{}
	}
	if cfg.MinIO == nil {
		cfg.MinIO = minio.NewConfig()
	}
	if cfg.Redis == nil {
		cfg.Redis = &infraredis.Config{}
	}
	if cfg.Database == nil {
		cfg.Database = &dbconfig.Config{}
	}
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	if cfg.Logging == nil {
		cfg.Logging = &logger.Config{}
	}
	if cfg.Profiling == nil {
		cfg.Profiling = &profiling.Config{}
	}

	setMirrorDefaults(cfg.Mirror)
	setFetchDefaults(cfg.Fetch)
	setServerDefaults(cfg.Server)

	if cfg.Archive.Backend == "" {
		cfg.Archive.Backend = BackendZip
	}
	if cfg.Archive.Path == "" {
		cfg.Archive.Path = defaultArchivePaths[cfg.Archive.Backend]
	}

	cfg.MinIO.SetDefaults()
	cfg.Database.SetDefaults()
	cfg.Logging.SetDefaults()
}

func setMirrorDefaults(m *MirrorConfig) {
	if m.Locale == "" {
		m.Locale = defaultLocale
	}
	if m.Color == "" {
		m.Color = defaultColor
	}
	if m.LeafConcurrency <= 0 {
		m.LeafConcurrency = defaultLeafConcurrency
	}
	if m.Slideshow.ImageSelector == "" {
		m.Slideshow.ImageSelector = defaultSlideSelector
	}
}

func setFetchDefaults(f *FetchConfig) {
	if f.Engine == "" {
		f.Engine = EngineHTTP
	}
	if f.UserAgent == "" {
		f.UserAgent = defaultUserAgent
	}
	if f.Timeout <= 0 {
		f.Timeout = defaultFetchTimeout
	}
	if f.MaxBodyBytes <= 0 {
		f.MaxBodyBytes = defaultMaxBodyBytes
	}
	f.Retry = f.Retry.WithDefaults()
	if f.BreakerThreshold == 0 {
		f.BreakerThreshold = defaultBreakerThreshold
	}
	if f.BreakerCooldown <= 0 {
		f.BreakerCooldown = defaultBreakerCooldown
	}
	if f.RateLimit > 0 && f.RateBurst <= 0 {
		f.RateBurst = 1
	}
}

func setServerDefaults(s *ServerConfig) {
	if s.Address == "" {
		s.Address = defaultServerAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = defaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = defaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = defaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = defaultShutdownTimeout
	}
	if s.OutputDir == "" {
		s.OutputDir = defaultOutputDir
	}
}

// ApplyViper overrides values that were set explicitly on v, typically by
// command-line flags bound in the root command.
func (c *Config) ApplyViper(v *viper.Viper) {
	if v.IsSet("mirror.locale") {
		c.Mirror.Locale = v.GetString("mirror.locale")
	}
	if v.IsSet("mirror.follow_links") {
		follow := v.GetBool("mirror.follow_links")
		c.Mirror.FollowLinks = &follow
	}
	if v.IsSet("mirror.load_scripts") {
		c.Mirror.LoadScripts = v.GetBool("mirror.load_scripts")
	}
	if v.IsSet("archive.backend") {
		previous := c.Archive.Backend
		c.Archive.Backend = v.GetString("archive.backend")
		if c.Archive.Path == defaultArchivePaths[previous] {
			c.Archive.Path = defaultArchivePaths[c.Archive.Backend]
		}
	}
	if v.IsSet("archive.path") {
		c.Archive.Path = v.GetString("archive.path")
	}
	if v.IsSet("fetch.engine") {
		c.Fetch.Engine = v.GetString("fetch.engine")
	}
	if v.IsSet("logging.level") {
		c.Logging.Level = v.GetString("logging.level")
	}
	if v.IsSet("logging.format") {
		c.Logging.Format = v.GetString("logging.format")
	}
	c.MinIO.ApplyViper(v)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := infraconfig.ValidateOneOf("archive.backend", c.Archive.Backend,
		BackendZip, BackendDir, BackendMinIO); err != nil {
		return err
	}
	if err := infraconfig.ValidateOneOf("fetch.engine", c.Fetch.Engine, EngineHTTP, EngineColly); err != nil {
		return err
	}
	if err := infraconfig.ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Archive.Backend == BackendMinIO {
		if err := c.MinIO.Validate(); err != nil {
			return fmt.Errorf("minio: %w", err)
		}
	}
	return nil
}

func (c *Config) GetMirrorConfig() *MirrorConfig        { return c.Mirror }
func (c *Config) GetFetchConfig() *FetchConfig          { return c.Fetch }
func (c *Config) GetArchiveConfig() *ArchiveConfig      { return c.Archive }
func (c *Config) GetMinIOConfig() *minio.Config         { return c.MinIO }
func (c *Config) GetRedisConfig() *infraredis.Config    { return c.Redis }
func (c *Config) GetDatabaseConfig() *dbconfig.Config   { return c.Database }
func (c *Config) GetServerConfig() *ServerConfig        { return c.Server }
func (c *Config) GetLoggingConfig() *logger.Config      { return c.Logging }
func (c *Config) GetProfilingConfig() *profiling.Config { return c.Profiling }
