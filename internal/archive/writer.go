// Package archive stores mirrored artifacts. Every backend is write-once per
// (directory, filename) key: a repeated write returns the existing reference
// without touching storage again.
package archive

import (
	"context"
	"errors"
	"path"
	"sort"
	"sync"
)

// Directory vocabulary used by handlers. Tooling inspecting an archive relies
// on these names.
const (
	DirRoot   = ""
	DirImages = "img"
	DirCSS    = "css"
	DirJS     = "js"
	DirMedia  = "media"
	DirFiles  = "files"
	DirDocs   = "docs"
	DirVideos = "videos"
	DirAudio  = "audio"
	DirSlides = "slides"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("archive: writer closed")

// Writer is the storage contract consumed by the mirroring engine.
//
//go:generate mockgen -destination=mocks/mock_writer.go -package=mocks . Writer
type Writer interface {
	// WriteBytes stores data at dir/name and returns its relative reference.
	WriteBytes(ctx context.Context, dir, name string, data []byte) (string, error)
	// WriteText stores content at dir/name and returns its relative reference.
	WriteText(ctx context.Context, dir, name, content string) (string, error)
	// WriteFile streams the local file into dir under its base name.
	WriteFile(ctx context.Context, dir, localPath string) (string, error)
	// Contains reports whether the relative path was already written.
	Contains(ref string) bool
	// Entries lists every written reference in sorted order.
	Entries() []string
	// Close flushes the archive. Writes after Close fail with ErrClosed.
	Close() error
}

// Ref joins a directory and filename into the relative reference stored in
// rewritten attributes.
func Ref(dir, name string) string {
	if dir == DirRoot {
		return name
	}
	return path.Join(dir, name)
}

// keySet tracks written references for the idempotency guarantee shared by
// every backend.
type keySet struct {
	mu     sync.Mutex
	keys   map[string]struct{}
	closed bool
}

func newKeySet() *keySet {
	return &keySet{keys: make(map[string]struct{})}
}

// claim reserves ref. It reports false when ref already exists.
func (k *keySet) claim(ref string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return false, ErrClosed
	}
	if _, ok := k.keys[ref]; ok {
		return false, nil
	}
	k.keys[ref] = struct{}{}
	return true, nil
}

// release forgets a claim whose write failed so a later attempt can retry.
func (k *keySet) release(ref string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, ref)
}

func (k *keySet) contains(ref string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.keys[ref]
	return ok
}

func (k *keySet) list() []string {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]string, 0, len(k.keys))
	for ref := range k.keys {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

// close marks the set closed and reports whether it was already closed.
func (k *keySet) close() bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	was := k.closed
	k.closed = true
	return was
}
