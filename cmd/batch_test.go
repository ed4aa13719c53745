package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadVideoIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "videos.txt")
	content := `# pilot sample
dQw4w9WgXcQ

jNQXAC9IVRw
  9bZkp7q19f0
# trailing comment
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ids, err := readVideoIDs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"dQw4w9WgXcQ", "jNQXAC9IVRw", "9bZkp7q19f0"}, ids)
}

func TestReadVideoIDs_MissingFile(t *testing.T) {
	_, err := readVideoIDs(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
}

func TestReadVideoIDs_EmptyPath(t *testing.T) {
	_, err := readVideoIDs("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--input is required")
}
