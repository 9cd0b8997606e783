// Package minio holds the object storage settings for the minio archive backend.
package minio

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config represents MinIO configuration for archive uploads.
type Config struct {
	// Endpoint is the MinIO server address (e.g., "minio:9000")
	Endpoint  string `env:"MIRROR_MINIO_ENDPOINT"   yaml:"endpoint"`
	AccessKey string `env:"MIRROR_MINIO_ACCESS_KEY" yaml:"access_key"`
	SecretKey string `env:"MIRROR_MINIO_SECRET_KEY" yaml:"secret_key"`
	UseSSL    bool   `env:"MIRROR_MINIO_USE_SSL"    yaml:"use_ssl"`
	Region    string `env:"MIRROR_MINIO_REGION"     yaml:"region"`
	// Bucket receives every archive entry under "<prefix>/<run>/".
	Bucket string `env:"MIRROR_MINIO_BUCKET" yaml:"bucket"`
	// CreateBucket creates Bucket at startup when it does not exist.
	CreateBucket  bool          `yaml:"create_bucket"`
	UploadTimeout time.Duration `yaml:"upload_timeout"`
}

const (
	defaultEndpoint      = "localhost:9000"
	defaultBucket        = "mirror-archives"
	defaultRegion        = "us-east-1"
	defaultUploadTimeout = 2 * time.Minute
)

// NewConfig returns a MinIO configuration with default values.
func NewConfig() *Config {
	return &Config{
		Endpoint:      defaultEndpoint,
		Bucket:        defaultBucket,
		Region:        defaultRegion,
		CreateBucket:  true,
		UploadTimeout: defaultUploadTimeout,
	}
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	d := NewConfig()
	if c.Endpoint == "" {
		c.Endpoint = d.Endpoint
	}
	if c.Bucket == "" {
		c.Bucket = d.Bucket
	}
	if c.Region == "" {
		c.Region = d.Region
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = d.UploadTimeout
	}
}

// ApplyViper overrides fields that were set explicitly through viper.
func (c *Config) ApplyViper(v *viper.Viper) {
	if v.IsSet("minio.endpoint") {
		c.Endpoint = v.GetString("minio.endpoint")
	}
	if v.IsSet("minio.bucket") {
		c.Bucket = v.GetString("minio.bucket")
	}
	if v.IsSet("minio.use_ssl") {
		c.UseSSL = v.GetBool("minio.use_ssl")
	}
}

// Validate validates the MinIO configuration.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("minio endpoint required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return errors.New("minio access_key and secret_key required")
	}
	if c.Bucket == "" {
		return errors.New("minio bucket required")
	}
	if c.UploadTimeout <= 0 {
		return errors.New("minio upload_timeout must be greater than 0")
	}
	return nil
}
