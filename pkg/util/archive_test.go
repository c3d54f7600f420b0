package util

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestWalkPromptFilesFiltersAndSkips(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"prompts/greet.txt":       "hello",
		"prompts/system.md":       "# system",
		"prompts/notes.json":      "{}",
		"node_modules/dep/x.txt":  "excluded",
		"src/deep/nested/ask.txt": "deep",
		"README.md":               "read",
	})

	files, err := WalkPromptFiles(dir, []string{"txt", "md"})
	require.NoError(t, err)

	rel := make([]string, 0, len(files))
	for _, f := range files {
		r, err := filepath.Rel(dir, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.ElementsMatch(t, []string{
		"prompts/greet.txt",
		"prompts/system.md",
		"src/deep/nested/ask.txt",
		"README.md",
	}, rel)
}

func TestWalkPromptFilesSingleFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "one.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	files, err := WalkPromptFiles(file, []string{"txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{file}, files)
}

func TestZipDirectoryRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":        "alpha",
		"nested/b.txt": "beta",
	})

	zipPath := filepath.Join(t.TempDir(), "out.zip")
	n, err := ZipDirectory(src, zipPath)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"a.txt", "nested/b.txt"}, names)
}

func TestNormalizeExts(t *testing.T) {
	assert.Equal(t, []string{"txt", "md"}, NormalizeExts([]string{".TXT", " md ", "", "txt"}))
	assert.Empty(t, NormalizeExts([]string{"", "."}))
}
