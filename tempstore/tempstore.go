// Package tempstore keeps the intermediate payloads of open documents and
// images, either in a private directory or in memory. Both backends charge
// every stored byte against an optional limit.
package tempstore

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wudi/pdfsamples/surface"
)

var (
	// ErrLimitExceeded is returned by Put when storing the payload would
	// exceed the configured limit.
	ErrLimitExceeded = errors.New("tempstore: memory limit exceeded")
	// ErrClosed is returned by Put after Close.
	ErrClosed = errors.New("tempstore: store closed")
)

// File is an open view of a blob. It satisfies both the sequential reader
// pdfcpu expects and the random-access reader used for text extraction.
type File interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// Blob is a stored payload.
type Blob interface {
	Name() string
	Size() int64
	Open() (File, error)
	// Remove deletes the payload and refunds its size. Removing twice is a
	// no-op.
	Remove() error
}

// Store holds blobs until they are removed or the store is closed.
type Store interface {
	Put(name string, r io.Reader) (Blob, error)
	// Usage returns the number of bytes currently held.
	Usage() int64
	// Limit returns the byte limit, or zero when unlimited.
	Limit() int64
	Close() error
}

// New returns the backend selected by cfg.TempStorage.
func New(cfg surface.Config) (Store, error) {
	cfg = cfg.Defaults()
	switch cfg.TempStorage {
	case surface.TempMemory:
		return NewMemory(cfg.MemoryLimit), nil
	case surface.TempDisk:
		return NewDisk(cfg.TempDir, cfg.MemoryLimit)
	default:
		return nil, fmt.Errorf("tempstore: unknown storage %q", cfg.TempStorage)
	}
}

// meter tracks usage against a limit. A zero limit disables the check.
type meter struct {
	mu     sync.Mutex
	used   int64
	limit  int64
	closed bool
}

// remaining returns how many more bytes fit, or -1 when unlimited.
func (m *meter) remaining() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	if m.limit <= 0 {
		return -1, nil
	}
	return m.limit - m.used, nil
}

func (m *meter) charge(n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.limit > 0 && m.used+n > m.limit {
		return fmt.Errorf("%w: %d bytes in use, %d requested, limit %d", ErrLimitExceeded, m.used, n, m.limit)
	}
	m.used += n
	return nil
}

func (m *meter) refund(n int64) {
	m.mu.Lock()
	m.used -= n
	if m.used < 0 {
		m.used = 0
	}
	m.mu.Unlock()
}

func (m *meter) usage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// capped reads r but fails with ErrLimitExceeded once more than rem bytes
// arrive. rem < 0 means unlimited.
func capped(r io.Reader, rem int64) io.Reader {
	if rem < 0 {
		return r
	}
	return &capReader{r: io.LimitReader(r, rem+1), rem: rem}
}

type capReader struct {
	r   io.Reader
	rem int64
	n   int64
}

func (c *capReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.n > c.rem {
		return n, fmt.Errorf("%w: payload larger than the %d bytes left", ErrLimitExceeded, c.rem)
	}
	return n, err
}

func cleanName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.NewReplacer("*", "_", string(filepath.Separator), "_").Replace(name)
	if name == "." || name == "" || name == "_" {
		return "blob"
	}
	return name
}
