package composite

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownValue = errors.New("unknown value")

type FontFamily string

const (
	FamilyArial         FontFamily = "Arial"
	FamilyCourierNew    FontFamily = "Courier New"
	FamilyGeorgia       FontFamily = "Georgia"
	FamilyTimesNewRoman FontFamily = "Times New Roman"
	FamilyVerdana       FontFamily = "Verdana"
)

var Families = []FontFamily{
	FamilyArial,
	FamilyCourierNew,
	FamilyGeorgia,
	FamilyTimesNewRoman,
	FamilyVerdana,
}

type FontWeight string

const (
	WeightNormal  FontWeight = "normal"
	WeightBold    FontWeight = "bold"
	WeightLighter FontWeight = "lighter"
)

type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// ParseFontFamily matches s against the known families, ignoring case.
func ParseFontFamily(s string) (FontFamily, error) {
	for _, f := range Families {
		if strings.EqualFold(string(f), strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("font family %q: %w", s, ErrUnknownValue)
}

func ParseFontWeight(s string) (FontWeight, error) {
	switch w := FontWeight(strings.ToLower(strings.TrimSpace(s))); w {
	case WeightNormal, WeightBold, WeightLighter:
		return w, nil
	}
	return "", fmt.Errorf("font weight %q: %w", s, ErrUnknownValue)
}

func ParseAlign(s string) (Align, error) {
	switch a := Align(strings.ToLower(strings.TrimSpace(s))); a {
	case AlignLeft, AlignCenter, AlignRight:
		return a, nil
	}
	return "", fmt.Errorf("text align %q: %w", s, ErrUnknownValue)
}

// Font returns the CSS-style font shorthand, e.g. "bold 20px Arial".
func (t Text) Font() string {
	return fmt.Sprintf("%s %dpx %s", t.FontWeight, t.SizePx, t.FontFamily)
}
