package tempstore

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
)

// Disk keeps payloads in a private directory that is removed on Close.
type Disk struct {
	meter
	dir string

	bmu   sync.Mutex
	blobs map[*diskBlob]struct{}
}

// NewDisk creates a private directory under parent (the system temp
// directory when empty).
func NewDisk(parent string, limit int64) (*Disk, error) {
	dir, err := os.MkdirTemp(parent, "pdfsession-*")
	if err != nil {
		return nil, err
	}
	return &Disk{meter: meter{limit: limit}, dir: dir, blobs: make(map[*diskBlob]struct{})}, nil
}

// Dir returns the store's private directory.
func (d *Disk) Dir() string { return d.dir }

func (d *Disk) Put(name string, r io.Reader) (Blob, error) {
	rem, err := d.remaining()
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(d.dir, cleanName(name)+"-*")
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(f, capped(r, rem))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = d.charge(n)
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, err
	}
	b := &diskBlob{name: cleanName(name), path: f.Name(), size: n, store: d}
	d.bmu.Lock()
	d.blobs[b] = struct{}{}
	d.bmu.Unlock()
	return b, nil
}

func (d *Disk) Usage() int64 { return d.usage() }

func (d *Disk) Limit() int64 { return d.limit }

// Close removes the directory and everything in it. Removal is retried
// with backoff since open handles on some platforms delay deletion.
func (d *Disk) Close() error {
	d.meter.mu.Lock()
	if d.closed {
		d.meter.mu.Unlock()
		return nil
	}
	d.closed = true
	d.used = 0
	d.meter.mu.Unlock()

	d.bmu.Lock()
	for b := range d.blobs {
		b.removed = true
	}
	clear(d.blobs)
	d.bmu.Unlock()

	return retry.Do(func() error {
		return os.RemoveAll(d.dir)
	}, retry.Attempts(3), retry.Delay(20*time.Millisecond), retry.DelayType(retry.BackOffDelay), retry.LastErrorOnly(true))
}

type diskBlob struct {
	name    string
	path    string
	size    int64
	store   *Disk
	removed bool
}

func (b *diskBlob) Name() string { return b.name }

func (b *diskBlob) Size() int64 { return b.size }

// Path returns the file backing the blob.
func (b *diskBlob) Path() string { return b.path }

func (b *diskBlob) Open() (File, error) {
	b.store.bmu.Lock()
	removed := b.removed
	b.store.bmu.Unlock()
	if removed {
		return nil, ErrClosed
	}
	f, err := os.Open(b.path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (b *diskBlob) Remove() error {
	d := b.store
	d.bmu.Lock()
	if b.removed {
		d.bmu.Unlock()
		return nil
	}
	b.removed = true
	delete(d.blobs, b)
	d.bmu.Unlock()
	d.refund(b.size)
	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
