package surface

import (
	"fmt"
	"slices"
)

// TempStorage selects where intermediate payloads are kept.
type TempStorage string

const (
	TempDisk   TempStorage = "disk"
	TempMemory TempStorage = "memory"
)

// Extension names an optional subsystem that must be probed at
// initialization.
type Extension string

const (
	ExtensionForms Extension = "forms"
	ExtensionOCR   Extension = "ocr"
)

// Config is handed to Driver.Initialize and snapshotted by the session.
type Config struct {
	// TempStorage defaults to TempDisk.
	TempStorage TempStorage `toml:"temp_storage" validate:"omitempty,oneof=disk memory"`

	// TempDir is the parent directory for disk storage. Empty means the
	// system temp directory.
	TempDir string `toml:"temp_dir"`

	// MemoryLimit caps the bytes held by open entities. Zero means no limit.
	MemoryLimit int64 `toml:"memory_limit" validate:"gte=0"`

	// Extensions lists optional subsystems to enable.
	Extensions []Extension `toml:"extensions" validate:"dive,oneof=forms ocr"`

	// Strict turns on strict validation of opened documents.
	Strict bool `toml:"strict"`
}

// Defaults fills unset fields.
func (c Config) Defaults() Config {
	if c.TempStorage == "" {
		c.TempStorage = TempDisk
	}
	return c
}

// Validate checks the fields a driver relies on.
func (c Config) Validate() error {
	switch c.TempStorage {
	case "", TempDisk, TempMemory:
	default:
		return fmt.Errorf("unknown temp storage %q", c.TempStorage)
	}
	if c.MemoryLimit < 0 {
		return fmt.Errorf("negative memory limit %d", c.MemoryLimit)
	}
	for _, ext := range c.Extensions {
		switch ext {
		case ExtensionForms, ExtensionOCR:
		default:
			return fmt.Errorf("unknown extension %q", ext)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.Extensions = slices.Clone(c.Extensions)
	return c
}

// HasExtension reports whether ext is enabled.
func (c Config) HasExtension(ext Extension) bool {
	return slices.Contains(c.Extensions, ext)
}
