package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FontFile is a font found on disk, named <Family>[-<Style>].<ext>.
type FontFile struct {
	Path   string
	Family string
	Style  string
}

var fontExts = map[string]bool{
	".ttf": true,
	".otf": true,
}

var fontStyles = map[string]string{
	"regular": "regular",
	"normal":  "regular",
	"bold":    "bold",
	"light":   "light",
	"lighter": "light",
}

// FindFonts lists the font files directly inside dir. Files whose suffix is
// not a known style are treated as the family's regular face.
func FindFonts(dir string) ([]FontFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list font dir %v: %w", dir, err)
	}

	fonts := make([]FontFile, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		if !fontExts[strings.ToLower(ext)] {
			continue
		}

		family, style := splitFontName(strings.TrimSuffix(entry.Name(), ext))
		fonts = append(fonts, FontFile{
			Path:   filepath.Join(dir, entry.Name()),
			Family: family,
			Style:  style,
		})
	}

	return fonts, nil
}

func splitFontName(name string) (string, string) {
	i := strings.LastIndex(name, "-")
	if i <= 0 {
		return name, "regular"
	}

	if style, ok := fontStyles[strings.ToLower(name[i+1:])]; ok {
		return name[:i], style
	}

	return name, "regular"
}

func Exists(path string) (bool, error) {
	_, err := os.Stat(path)

	if err == nil {
		return true, nil
	} else if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else {
		return false, fmt.Errorf("stat path %v: %w", path, err)
	}
}

func IsDir(path string) (bool, error) {
	stat, err := os.Stat(path)

	if err == nil {
		return stat.IsDir(), nil
	} else {
		return false, fmt.Errorf("stat path %v: %w", path, err)
	}
}
