package tempstore

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfsamples/surface"
)

func stores(t *testing.T, limit int64) map[string]Store {
	t.Helper()
	disk, err := NewDisk(t.TempDir(), limit)
	require.NoError(t, err)
	mem := NewMemory(limit)
	t.Cleanup(func() {
		_ = disk.Close()
		_ = mem.Close()
	})
	return map[string]Store{"disk": disk, "memory": mem}
}

func readAll(t *testing.T, b Blob) string {
	t.Helper()
	f, err := b.Open()
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

func TestPutAndRead(t *testing.T) {
	for name, s := range stores(t, 0) {
		t.Run(name, func(t *testing.T) {
			b, err := s.Put("in/report.pdf", strings.NewReader("%PDF-1.7 body"))
			require.NoError(t, err)
			assert.Equal(t, "report.pdf", b.Name())
			assert.Equal(t, int64(13), b.Size())
			assert.Equal(t, int64(13), s.Usage())
			assert.Equal(t, "%PDF-1.7 body", readAll(t, b))

			f, err := b.Open()
			require.NoError(t, err)
			buf := make([]byte, 3)
			_, err = f.ReadAt(buf, 5)
			require.NoError(t, err)
			assert.Equal(t, "1.7", string(buf))
			require.NoError(t, f.Close())

			require.NoError(t, b.Remove())
			require.NoError(t, b.Remove())
			assert.Zero(t, s.Usage())
			_, err = b.Open()
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestLimitIsEnforced(t *testing.T) {
	for name, s := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			a, err := s.Put("a", strings.NewReader("123456"))
			require.NoError(t, err)

			_, err = s.Put("b", strings.NewReader("123456"))
			require.ErrorIs(t, err, ErrLimitExceeded)
			assert.Equal(t, int64(6), s.Usage(), "a rejected payload is not charged")

			require.NoError(t, a.Remove())
			b, err := s.Put("b", bytes.NewReader(make([]byte, 10)))
			require.NoError(t, err)
			assert.Equal(t, int64(10), s.Usage())
			assert.Equal(t, int64(10), s.Limit())
			require.NoError(t, b.Remove())
		})
	}
}

func TestPutAfterClose(t *testing.T) {
	for name, s := range stores(t, 0) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Close())
			_, err := s.Put("late", strings.NewReader("x"))
			assert.ErrorIs(t, err, ErrClosed)
			assert.NoError(t, s.Close())
		})
	}
}

func TestDiskCloseRemovesDirectory(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 0)
	require.NoError(t, err)
	b, err := d.Put("doc.pdf", strings.NewReader("data"))
	require.NoError(t, err)
	_, err = os.Stat(b.(*diskBlob).Path())
	require.NoError(t, err)

	require.NoError(t, d.Close())
	_, err = os.Stat(d.Dir())
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = b.Open()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(surface.Config{TempStorage: surface.TempMemory, MemoryLimit: 5})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
	assert.Equal(t, int64(5), s.Limit())
	require.NoError(t, s.Close())

	s, err = New(surface.Config{TempDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Disk{}, s)
	require.NoError(t, s.Close())

	_, err = New(surface.Config{TempStorage: "tape"})
	assert.Error(t, err)
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "blob", cleanName(""))
	assert.Equal(t, "blob", cleanName("/"))
	assert.Equal(t, "a_b.pdf", cleanName("dir/a*b.pdf"))
}
