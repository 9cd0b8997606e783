package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/config/minio"
)

const defaultContentType = "application/octet-stream"

// ObjectPutter is the subset of the MinIO client used by MinIOWriter.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64,
		opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error)
	FPutObject(ctx context.Context, bucket, key, filePath string,
		opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error)
}

// MinIOWriter stores every entry as an object under Prefix in one bucket.
type MinIOWriter struct {
	client ObjectPutter
	bucket string
	prefix string
	cfg    *minio.Config
	log    logger.Logger
	keys   *keySet
}

// NewMinIOClient connects to MinIO and ensures the bucket exists when
// cfg.CreateBucket is set.
func NewMinIOClient(ctx context.Context, cfg *minio.Config) (*miniogo.Client, error) {
	if cfg == nil {
		return nil, errors.New("minio config is nil")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	if !cfg.CreateBucket {
		return client, nil
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if mkErr := client.MakeBucket(ctx, cfg.Bucket, miniogo.MakeBucketOptions{Region: cfg.Region}); mkErr != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, mkErr)
		}
	}

	return client, nil
}

// NewMinIOWriter returns a writer that uploads objects as "<prefix>/<ref>".
func NewMinIOWriter(client ObjectPutter, cfg *minio.Config, prefix string, log logger.Logger) *MinIOWriter {
	if log == nil {
		log = logger.NewNop()
	}
	return &MinIOWriter{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		cfg:    cfg,
		log:    log,
		keys:   newKeySet(),
	}
}

// Key returns the object key used for ref.
func (m *MinIOWriter) Key(ref string) string {
	if m.prefix == "" {
		return ref
	}
	return path.Join(m.prefix, ref)
}

// WriteBytes implements Writer.
func (m *MinIOWriter) WriteBytes(ctx context.Context, dir, name string, data []byte) (string, error) {
	ref := Ref(dir, name)
	return m.upload(ctx, ref, func(ctx context.Context, key string, opts miniogo.PutObjectOptions) error {
		_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
		return err
	})
}

// WriteText implements Writer.
func (m *MinIOWriter) WriteText(ctx context.Context, dir, name, content string) (string, error) {
	return m.WriteBytes(ctx, dir, name, []byte(content))
}

// WriteFile implements Writer.
func (m *MinIOWriter) WriteFile(ctx context.Context, dir, localPath string) (string, error) {
	ref := Ref(dir, filepath.Base(localPath))
	return m.upload(ctx, ref, func(ctx context.Context, key string, opts miniogo.PutObjectOptions) error {
		_, err := m.client.FPutObject(ctx, m.bucket, key, localPath, opts)
		return err
	})
}

func (m *MinIOWriter) upload(
	ctx context.Context,
	ref string,
	put func(context.Context, string, miniogo.PutObjectOptions) error,
) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fresh, err := m.keys.claim(ref)
	if err != nil {
		return "", err
	}
	if !fresh {
		return ref, nil
	}

	uploadCtx, cancel := context.WithTimeout(ctx, m.cfg.UploadTimeout)
	defer cancel()

	key := m.Key(ref)
	if putErr := put(uploadCtx, key, miniogo.PutObjectOptions{ContentType: contentType(ref)}); putErr != nil {
		m.keys.release(ref)
		return "", fmt.Errorf("failed to upload %s: %w", key, putErr)
	}

	m.log.Debug("Uploaded archive entry to MinIO",
		logger.String("bucket", m.bucket),
		logger.String("object_key", key))

	return ref, nil
}

func contentType(ref string) string {
	if ct := mime.TypeByExtension(path.Ext(ref)); ct != "" {
		return ct
	}
	return defaultContentType
}

// Contains implements Writer.
func (m *MinIOWriter) Contains(ref string) bool { return m.keys.contains(ref) }

// Entries implements Writer.
func (m *MinIOWriter) Entries() []string { return m.keys.list() }

// Close implements Writer. Objects are already durable once uploaded.
func (m *MinIOWriter) Close() error {
	m.keys.close()
	return nil
}
