package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfsamples/session"
)

func run(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	color.NoColor = true
	var out, errOut bytes.Buffer
	code = execute(args, &out, &errOut)
	require.Nil(t, session.Active(), "session left open")
	return code, out.String(), errOut.String()
}

func TestDryRunPrintsLifecycle(t *testing.T) {
	code, out, errOut := run(t, "rotate", "in.pdf", "out.pdf", "--dry-run", "--temp-storage", "memory")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, strings.Join([]string{
		"lifecycle init",
		"lifecycle open:in.pdf",
		"lifecycle close:in.pdf",
		"lifecycle shutdown",
	}, "\n")+"\n", out)
}

func TestDryRunOrdersNestedResources(t *testing.T) {
	code, out, _ := run(t, "text", "in.pdf", "--dry-run")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "lifecycle open:in.pdf\nlifecycle open:in.pdf#words\nlifecycle close:in.pdf#words\nlifecycle close:in.pdf\n")
}

func TestInvalidFlags(t *testing.T) {
	code, _, errOut := run(t, "info", "in.pdf", "--temp-storage", "tape", "--dry-run")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "session.temp_storage")

	code, _, errOut = run(t, "info", "in.pdf", "--memory-limit", "-1", "--dry-run")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "session.memory_limit")

	code, _, _ = run(t, "info")
	assert.Equal(t, 1, code)
}

func TestInfoReleasesWhatItOpens(t *testing.T) {
	code, out, errOut := run(t, "info", filepath.Join("..", "..", "examples", "resources", "sample.pdf"), "--temp-storage", "memory")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Title:       Sample Report")
	assert.Contains(t, out, "Pages:       3")
	assert.Empty(t, errOut)
}

func TestMissingInput(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.pdf")
	code, _, errOut := run(t, "info", missing, "--temp-storage", "memory")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "open document "+missing)
	assert.Contains(t, errOut, "no such file or directory")
}

func TestFormsCalculation(t *testing.T) {
	script := filepath.Join(t.TempDir(), "calc.js")
	require.NoError(t, os.WriteFile(script, []byte(`event.value = getField("price").value * getField("qty").value;`), 0o644))

	code, out, errOut := run(t, "forms", script, "--field", "price=2", "--field", "qty=3", "--temp-storage", "memory")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "total = 6")

	code, _, errOut = run(t, "forms", script, "--field", "price", "--temp-storage", "memory")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, `field "price": want name=value`)
}

func TestConvertText(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(src, []byte("Hello from the command line."), 0o644))
	out := filepath.Join(dir, "note.pdf")

	code, stdout, errOut := run(t, "convert", src, out, "--temp-storage", "memory")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, stdout, "(1 pages)")
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	code, _, errOut = run(t, "convert", filepath.Join(dir, "sheet.xlsx"), out, "--paper", "a4")
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, errOut)
}
