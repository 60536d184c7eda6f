// Command render composites a design offline and writes it as a PNG, using
// the same engine the server paints frames with.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
	"github.com/Carbon-X-DAO/TeeCustomizer/config"
	"github.com/Carbon-X-DAO/TeeCustomizer/image"
)

var (
	flagBackground string
	flagOverlay    string
	flagOut        string
	flagFonts      string
	flagLogLevel   string
	flagWidth      int
	flagHeight     int
	flagScale      float64
	flagOverlayX   float64
	flagOverlayY   float64
	flagTextX      float64
	flagTextY      float64

	flagText   string
	flagSize   int
	flagColor  string
	flagFont   string
	flagWeight string
	flagAlign  string
)

func init() {
	flag.StringVar(&flagBackground, "bg", "", "background image file")
	flag.StringVar(&flagOverlay, "overlay", "", "overlay image file")
	flag.StringVar(&flagOut, "out", "custom_tshirt.png", "output PNG file")
	flag.StringVar(&flagFonts, "fonts", "", "directory with <Family>[-Bold|-Light].ttf overrides")
	flag.StringVar(&flagLogLevel, "log-level", "warn", "debug, info, warn or error")
	flag.IntVar(&flagWidth, "width", composite.DefaultWidth, "canvas width in pixels")
	flag.IntVar(&flagHeight, "height", composite.DefaultHeight, "canvas height in pixels")
	flag.Float64Var(&flagScale, "scale", composite.DefaultScale, "overlay scale, clamped to 0.1..2.0")
	flag.Float64Var(&flagOverlayX, "overlay-x", 0, "overlay centre x (default canvas centre)")
	flag.Float64Var(&flagOverlayY, "overlay-y", 0, "overlay centre y (default canvas centre)")
	flag.Float64Var(&flagTextX, "text-x", 0, "text anchor x (default canvas centre)")
	flag.Float64Var(&flagTextY, "text-y", 0, "text anchor y (default 80% of the canvas height)")
	flag.StringVar(&flagText, "text", "", "text to draw")
	flag.IntVar(&flagSize, "size", 20, "text size in pixels")
	flag.StringVar(&flagColor, "color", "#000000", "text colour as #rrggbb")
	flag.StringVar(&flagFont, "font", string(composite.FamilyArial), "font family")
	flag.StringVar(&flagWeight, "weight", string(composite.WeightNormal), "normal, bold or lighter")
	flag.StringVar(&flagAlign, "align", string(composite.AlignCenter), "left, center or right")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "render: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := config.Log{Level: flagLogLevel}.NewLogger(os.Stderr)

	family, err := composite.ParseFontFamily(flagFont)
	if err != nil {
		return err
	}
	weight, err := composite.ParseFontWeight(flagWeight)
	if err != nil {
		return err
	}
	align, err := composite.ParseAlign(flagAlign)
	if err != nil {
		return err
	}

	model := composite.New(composite.Canvas{Width: flagWidth, Height: flagHeight})
	model.SetOverlayScale(flagScale - model.OverlayScale())
	model.SetOverlayAnchor(anchor(flag.CommandLine, model.OverlayAnchor(), "overlay-x", flagOverlayX, "overlay-y", flagOverlayY))
	model.SetTextAnchor(anchor(flag.CommandLine, model.TextAnchor(), "text-x", flagTextX, "text-y", flagTextY))
	model.SetTextStyle(composite.Style{
		Content:    &flagText,
		SizePx:     &flagSize,
		ColorHex:   &flagColor,
		FontFamily: &family,
		FontWeight: &weight,
		Align:      &align,
	})

	if flagBackground != "" {
		src, err := readSource(flagBackground)
		if err != nil {
			return err
		}
		model.SetBackground(src)
	}
	if flagOverlay != "" {
		src, err := readSource(flagOverlay)
		if err != nil {
			return err
		}
		model.SetOverlayImage(src)
	}

	fonts, err := image.NewFontBook(flagFonts, logger)
	if err != nil {
		return err
	}

	decoder := image.NewDecoder(1, 0)
	var engine *image.Engine
	engine = image.NewEngine(model.Canvas(), fonts, func(layer image.Layer, src *composite.Source) {
		img, err := decoder.Decode(context.Background(), src)
		engine.Resolve(image.Decoded{Layer: layer, ID: src.ID, Image: img, Err: err})
	}, logger)
	defer engine.Close()

	frame := engine.Render(model.Snapshot())
	for layer, err := range frame.Failed {
		logger.Warn("layer left unpainted", "layer", layer, "err", err)
	}

	out, err := os.Create(flagOut)
	if err != nil {
		return fmt.Errorf("create %v: %w", flagOut, err)
	}
	if err := engine.Encode(out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %v: %w", flagOut, err)
	}

	logger.Info("design written", "path", flagOut)
	return nil
}

// anchor overrides the model default only with the coordinates given on the
// command line.
func anchor(fs *flag.FlagSet, def composite.Point, xName string, x float64, yName string, y float64) composite.Point {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case xName:
			def.X = x
		case yName:
			def.Y = y
		}
	})
	return def
}

func readSource(name string) (composite.Source, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return composite.Source{}, fmt.Errorf("read %v: %w", name, err)
	}
	return composite.Source{MIME: http.DetectContentType(data), Data: data}, nil
}
