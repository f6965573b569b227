package tempstore

import (
	"bytes"
	"io"
	"sync"
)

// Memory keeps payloads in RAM.
type Memory struct {
	meter
	bmu   sync.Mutex
	blobs map[*memBlob]struct{}
}

// NewMemory returns an in-memory store holding at most limit bytes. A zero
// limit means no limit.
func NewMemory(limit int64) *Memory {
	return &Memory{meter: meter{limit: limit}, blobs: make(map[*memBlob]struct{})}
}

func (m *Memory) Put(name string, r io.Reader) (Blob, error) {
	rem, err := m.remaining()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(capped(r, rem))
	if err != nil {
		return nil, err
	}
	if err := m.charge(int64(len(data))); err != nil {
		return nil, err
	}
	b := &memBlob{name: cleanName(name), data: data, store: m}
	m.bmu.Lock()
	m.blobs[b] = struct{}{}
	m.bmu.Unlock()
	return b, nil
}

func (m *Memory) Usage() int64 { return m.usage() }

func (m *Memory) Limit() int64 { return m.limit }

// Close drops every blob. Blobs opened before Close stay readable through
// their File.
func (m *Memory) Close() error {
	m.meter.mu.Lock()
	m.closed = true
	m.used = 0
	m.meter.mu.Unlock()

	m.bmu.Lock()
	for b := range m.blobs {
		b.data = nil
	}
	clear(m.blobs)
	m.bmu.Unlock()
	return nil
}

type memBlob struct {
	name    string
	data    []byte
	store   *Memory
	removed bool
}

func (b *memBlob) Name() string { return b.name }

func (b *memBlob) Size() int64 {
	b.store.bmu.Lock()
	defer b.store.bmu.Unlock()
	return int64(len(b.data))
}

func (b *memBlob) Open() (File, error) {
	b.store.bmu.Lock()
	defer b.store.bmu.Unlock()
	if b.removed || b.data == nil {
		return nil, ErrClosed
	}
	return memFile{bytes.NewReader(b.data)}, nil
}

func (b *memBlob) Remove() error {
	m := b.store
	m.bmu.Lock()
	if b.removed {
		m.bmu.Unlock()
		return nil
	}
	b.removed = true
	n := int64(len(b.data))
	b.data = nil
	delete(m.blobs, b)
	m.bmu.Unlock()
	m.refund(n)
	return nil
}

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }
