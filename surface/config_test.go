package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.Defaults()
	assert.Equal(t, TempDisk, cfg.TempStorage)

	cfg = Config{TempStorage: TempMemory}.Defaults()
	assert.Equal(t, TempMemory, cfg.TempStorage)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"zero", Config{}, true},
		{"memory", Config{TempStorage: TempMemory, MemoryLimit: 1024}, true},
		{"extensions", Config{Extensions: []Extension{ExtensionForms, ExtensionOCR}}, true},
		{"unknown storage", Config{TempStorage: "tape"}, false},
		{"negative limit", Config{MemoryLimit: -1}, false},
		{"unknown extension", Config{Extensions: []Extension{"xfa"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}

func TestConfigCloneIsDeep(t *testing.T) {
	cfg := Config{Extensions: []Extension{ExtensionForms}}
	clone := cfg.Clone()
	clone.Extensions[0] = ExtensionOCR

	assert.True(t, cfg.HasExtension(ExtensionForms))
	assert.False(t, cfg.HasExtension(ExtensionOCR))
	assert.True(t, clone.HasExtension(ExtensionOCR))
}
