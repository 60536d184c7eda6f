package image

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
	"github.com/Carbon-X-DAO/TeeCustomizer/fsutil"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

type fontKey struct {
	family composite.FontFamily
	weight composite.FontWeight
}

// FontBook holds parsed fonts for every family and weight. Parsed fonts are
// read-only and shared between engines; faces are not and live per engine.
type FontBook struct {
	fonts map[fontKey]*opentype.Font
}

var fontStyleWeights = map[string]composite.FontWeight{
	"regular": composite.WeightNormal,
	"bold":    composite.WeightBold,
	"light":   composite.WeightLighter,
}

// NewFontBook loads the built-in Go fonts and then any overrides found in
// dir. An empty dir means built-ins only.
func NewFontBook(dir string, logger *slog.Logger) (*FontBook, error) {
	sans, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse Go Regular: %w", err)
	}
	sansBold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse Go Bold: %w", err)
	}
	mono, err := opentype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse Go Mono: %w", err)
	}
	monoBold, err := opentype.Parse(gomonobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse Go Mono Bold: %w", err)
	}

	book := &FontBook{fonts: make(map[fontKey]*opentype.Font)}
	for _, family := range composite.Families {
		regular, bold := sans, sansBold
		if family == composite.FamilyCourierNew {
			regular, bold = mono, monoBold
		}
		book.fonts[fontKey{family, composite.WeightNormal}] = regular
		book.fonts[fontKey{family, composite.WeightBold}] = bold
	}

	if dir == "" {
		return book, nil
	}

	files, err := fsutil.FindFonts(dir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		family, err := composite.ParseFontFamily(file.Family)
		if err != nil {
			logger.Warn("skipping font for unknown family", "path", file.Path, "family", file.Family)
			continue
		}

		data, err := os.ReadFile(file.Path)
		if err != nil {
			return nil, fmt.Errorf("read font %v: %w", file.Path, err)
		}

		f, err := opentype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse font %v: %w", file.Path, err)
		}

		book.fonts[fontKey{family, fontStyleWeights[file.Style]}] = f
		logger.Debug("loaded font", "path", file.Path, "family", family, "style", file.Style)
	}

	return book, nil
}

// Lookup falls back to the family's normal weight, then to Arial.
func (b *FontBook) Lookup(family composite.FontFamily, weight composite.FontWeight) *opentype.Font {
	if f, ok := b.fonts[fontKey{family, weight}]; ok {
		return f
	}
	if f, ok := b.fonts[fontKey{family, composite.WeightNormal}]; ok {
		return f
	}
	return b.fonts[fontKey{composite.FamilyArial, composite.WeightNormal}]
}
