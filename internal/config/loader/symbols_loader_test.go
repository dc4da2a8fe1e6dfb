package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSymbols(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "symbols.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSymbolsYAMLList(t *testing.T) {
	path := writeSymbols(t, "- \"513500\"\n- \"159915\"\n- \"513500\"\n")
	symbols, err := LoadSymbols(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"159915", "513500"}, symbols, "去重并升序")
}

func TestLoadSymbolsPlainText(t *testing.T) {
	path := writeSymbols(t, "# 核心池\n513500\n\n159915\n  513300  \n")
	symbols, err := LoadSymbols(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"159915", "513300", "513500"}, symbols)
}

func TestLoadSymbolsEmptyFile(t *testing.T) {
	path := writeSymbols(t, "\n# 只有注释\n")
	_, err := LoadSymbols(path)
	assert.Error(t, err)
}

func TestLoadSymbolsMissingFile(t *testing.T) {
	_, err := LoadSymbols(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
