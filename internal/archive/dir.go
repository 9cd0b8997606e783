package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DirWriter writes entries into a directory tree rooted at Root.
type DirWriter struct {
	Root string
	keys *keySet
}

// NewDirWriter creates root if needed.
func NewDirWriter(root string) (*DirWriter, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &DirWriter{Root: root, keys: newKeySet()}, nil
}

// WriteBytes implements Writer.
func (d *DirWriter) WriteBytes(ctx context.Context, dir, name string, data []byte) (string, error) {
	return d.write(ctx, Ref(dir, name), func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// WriteText implements Writer.
func (d *DirWriter) WriteText(ctx context.Context, dir, name, content string) (string, error) {
	return d.WriteBytes(ctx, dir, name, []byte(content))
}

// WriteFile implements Writer.
func (d *DirWriter) WriteFile(ctx context.Context, dir, localPath string) (string, error) {
	return d.write(ctx, Ref(dir, filepath.Base(localPath)), func(f *os.File) error {
		src, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = io.Copy(f, src)
		return err
	})
}

func (d *DirWriter) write(ctx context.Context, ref string, fill func(*os.File) error) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fresh, err := d.keys.claim(ref)
	if err != nil {
		return "", err
	}
	if !fresh {
		return ref, nil
	}

	target := filepath.Join(d.Root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		d.keys.release(ref)
		return "", fmt.Errorf("create directory for %s: %w", ref, err)
	}

	f, err := os.Create(target)
	if err != nil {
		d.keys.release(ref)
		return "", fmt.Errorf("create %s: %w", ref, err)
	}

	if err := fill(f); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		d.keys.release(ref)
		return "", fmt.Errorf("write %s: %w", ref, err)
	}

	if err := f.Close(); err != nil {
		d.keys.release(ref)
		return "", fmt.Errorf("close %s: %w", ref, err)
	}

	return ref, nil
}

// Contains implements Writer.
func (d *DirWriter) Contains(ref string) bool { return d.keys.contains(ref) }

// Entries implements Writer.
func (d *DirWriter) Entries() []string { return d.keys.list() }

// Close implements Writer.
func (d *DirWriter) Close() error {
	d.keys.close()
	return nil
}
