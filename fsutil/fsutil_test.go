package fsutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFonts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"Georgia.ttf", "Georgia-Bold.ttf", "Times New Roman-Light.otf", "Co-Op.ttf", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.ttf"), 0o755))

	fonts, err := FindFonts(dir)
	require.NoError(t, err)
	sort.Slice(fonts, func(i, j int) bool { return fonts[i].Path < fonts[j].Path })

	require.Len(t, fonts, 4)
	assert.Equal(t, FontFile{Path: filepath.Join(dir, "Co-Op.ttf"), Family: "Co-Op", Style: "regular"}, fonts[0])
	assert.Equal(t, FontFile{Path: filepath.Join(dir, "Georgia-Bold.ttf"), Family: "Georgia", Style: "bold"}, fonts[1])
	assert.Equal(t, FontFile{Path: filepath.Join(dir, "Georgia.ttf"), Family: "Georgia", Style: "regular"}, fonts[2])
	assert.Equal(t, FontFile{Path: filepath.Join(dir, "Times New Roman-Light.otf"), Family: "Times New Roman", Style: "light"}, fonts[3])
}

func TestFindFontsMissingDir(t *testing.T) {
	_, err := FindFonts(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestExistsAndIsDir(t *testing.T) {
	dir := t.TempDir()

	ok, err := Exists(dir)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Exists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, ok)

	isDir, err := IsDir(dir)
	require.NoError(t, err)
	assert.True(t, isDir)
}
