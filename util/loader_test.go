package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestLoadDirectoryImageFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.png"), "b")
	writeFile(t, filepath.Join(dir, "a.JPG"), "a")
	writeFile(t, filepath.Join(dir, "notes.txt"), "skip")
	writeFile(t, filepath.Join(dir, "nested", "c.png"), "skip")

	images, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "a", string(images[0].Data))
	assert.Equal(t, "b", string(images[1].Data))
	assert.Empty(t, images[0].Label)
}

func TestLoadLabelledImageFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pituitary", "p1.jpg"), "p1")
	writeFile(t, filepath.Join(root, "glioma", "g2.jpg"), "g2")
	writeFile(t, filepath.Join(root, "glioma", "g1.jpg"), "g1")
	writeFile(t, filepath.Join(root, "other", "x.jpg"), "x")

	images, err := LoadLabelledImageFiles(root, []string{"glioma", "pituitary"})
	require.NoError(t, err)
	require.Len(t, images, 3)
	assert.Equal(t, []string{"glioma", "glioma", "pituitary"}, []string{images[0].Label, images[1].Label, images[2].Label})
	assert.Equal(t, "g1", string(images[0].Data))

	all, err := LoadLabelledImageFiles(root, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = LoadLabelledImageFiles(root, []string{"meningioma"})
	assert.Error(t, err)
}

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("scan.JPEG"))
	assert.True(t, IsImageFile("scan.webp"))
	assert.False(t, IsImageFile("scan.json"))
}
