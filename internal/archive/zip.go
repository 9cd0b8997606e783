package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ZipWriter streams entries into a single zip file.
type ZipWriter struct {
	keys *keySet

	mu   sync.Mutex
	zw   *zip.Writer
	file io.Closer
}

// NewZipWriter creates (or truncates) the zip file at path.
func NewZipWriter(path string) (*ZipWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create zip archive: %w", err)
	}

	return newZipWriter(f, f), nil
}

// NewZipWriterTo writes the zip to w. Closing the writer does not close w.
func NewZipWriterTo(w io.Writer) *ZipWriter {
	return newZipWriter(w, nil)
}

func newZipWriter(w io.Writer, closer io.Closer) *ZipWriter {
	return &ZipWriter{
		keys: newKeySet(),
		zw:   zip.NewWriter(w),
		file: closer,
	}
}

// WriteBytes implements Writer.
func (z *ZipWriter) WriteBytes(ctx context.Context, dir, name string, data []byte) (string, error) {
	return z.write(ctx, Ref(dir, name), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteText implements Writer.
func (z *ZipWriter) WriteText(ctx context.Context, dir, name, content string) (string, error) {
	return z.WriteBytes(ctx, dir, name, []byte(content))
}

// WriteFile implements Writer.
func (z *ZipWriter) WriteFile(ctx context.Context, dir, localPath string) (string, error) {
	return z.write(ctx, Ref(dir, filepath.Base(localPath)), func(w io.Writer) error {
		f, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(w, f)
		return err
	})
}

func (z *ZipWriter) write(ctx context.Context, ref string, fill func(io.Writer) error) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fresh, err := z.keys.claim(ref)
	if err != nil {
		return "", err
	}
	if !fresh {
		return ref, nil
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	w, err := z.zw.Create(ref)
	if err != nil {
		z.keys.release(ref)
		return "", fmt.Errorf("create zip entry %s: %w", ref, err)
	}
	if err := fill(w); err != nil {
		// The partial entry stays in the zip stream; the key stays claimed so
		// the archive never holds two entries with the same name.
		return "", fmt.Errorf("write zip entry %s: %w", ref, err)
	}

	return ref, nil
}

// Contains implements Writer.
func (z *ZipWriter) Contains(ref string) bool { return z.keys.contains(ref) }

// Entries implements Writer.
func (z *ZipWriter) Entries() []string { return z.keys.list() }

// Close finishes the zip directory and closes the underlying file.
func (z *ZipWriter) Close() error {
	if z.keys.close() {
		return nil
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	if err := z.zw.Close(); err != nil {
		return fmt.Errorf("finish zip archive: %w", err)
	}
	if z.file != nil {
		if err := z.file.Close(); err != nil {
			return fmt.Errorf("close zip archive: %w", err)
		}
	}
	return nil
}
