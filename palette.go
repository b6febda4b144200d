package vigil

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// paletteFile is the YAML representation of a palette:
//
//	colors:
//	  - name: red
//	    hsv: {h: [345, 15], s: [0.15, 1], v: [0.2, 1]}
//	  - name: skin
//	    rgb: {r: [180, 255], g: [120, 210], b: [90, 180]}
//
// Missing bounds default to the full channel range.
type paletteFile struct {
	Colors []struct {
		Name string    `yaml:"name"`
		RGB  *rgbBound `yaml:"rgb"`
		HSV  *hsvBound `yaml:"hsv"`
	} `yaml:"colors"`
}

type rgbBound struct {
	R []int `yaml:"r"`
	G []int `yaml:"g"`
	B []int `yaml:"b"`
}

type hsvBound struct {
	H []float64 `yaml:"h"`
	S []float64 `yaml:"s"`
	V []float64 `yaml:"v"`
}

// LoadPaletteFile reads a YAML palette from the file system.
func LoadPaletteFile(path string) (Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open the palette file: %w", err)
	}
	defer f.Close()

	return LoadPalette(f)
}

// LoadPalette decodes a YAML palette. The order of the colors is preserved.
func LoadPalette(r io.Reader) (Palette, error) {
	var pf paletteFile
	if err := yaml.NewDecoder(r).Decode(&pf); err != nil {
		return nil, fmt.Errorf("could not decode the palette: %w", err)
	}
	if len(pf.Colors) == 0 {
		return nil, errors.New("the palette should contain at least one color")
	}

	palette := make(Palette, 0, len(pf.Colors))
	seen := make(map[string]bool, len(pf.Colors))

	for i, c := range pf.Colors {
		if c.Name == "" {
			return nil, fmt.Errorf("palette color #%d has no name", i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate palette color %q", c.Name)
		}
		seen[c.Name] = true

		switch {
		case c.RGB != nil && c.HSV != nil:
			return nil, fmt.Errorf("palette color %q: use either rgb or hsv bounds", c.Name)
		case c.RGB != nil:
			pred, err := c.RGB.predicate()
			if err != nil {
				return nil, fmt.Errorf("palette color %q: %w", c.Name, err)
			}
			palette = append(palette, NamedColor{Name: c.Name, Match: pred})
		case c.HSV != nil:
			pred, err := c.HSV.predicate()
			if err != nil {
				return nil, fmt.Errorf("palette color %q: %w", c.Name, err)
			}
			palette = append(palette, NamedColor{Name: c.Name, Match: pred})
		default:
			return nil, fmt.Errorf("palette color %q has no bounds", c.Name)
		}
	}
	return palette, nil
}

func (b *rgbBound) predicate() (RGBRange, error) {
	var r RGBRange
	channels := []struct {
		name     string
		v        []int
		min, max *uint8
	}{
		{"r", b.R, &r.Min.R, &r.Max.R},
		{"g", b.G, &r.Min.G, &r.Max.G},
		{"b", b.B, &r.Min.B, &r.Max.B},
	}
	for _, ch := range channels {
		lo, hi, err := bound(ch.v, 0, 255)
		if err != nil {
			return r, fmt.Errorf("%s: %w", ch.name, err)
		}
		*ch.min, *ch.max = uint8(lo), uint8(hi)
	}
	return r, nil
}

func (b *hsvBound) predicate() (HSVRange, error) {
	var r HSVRange
	var err error

	// The hue is the only range allowed to wrap around.
	if len(b.H) == 0 {
		r.HMin, r.HMax = 0, 360
	} else if len(b.H) == 2 && inHue(b.H[0]) && inHue(b.H[1]) {
		r.HMin, r.HMax = b.H[0], b.H[1]
	} else {
		return r, errors.New("h: expected two values in [0, 360]")
	}
	if r.SMin, r.SMax, err = bound(b.S, 0, 1); err != nil {
		return r, fmt.Errorf("s: %w", err)
	}
	if r.VMin, r.VMax, err = bound(b.V, 0, 1); err != nil {
		return r, fmt.Errorf("v: %w", err)
	}
	return r, nil
}

func inHue(h float64) bool {
	return h >= 0 && h <= 360
}

// bound validates a [min, max] pair, defaulting to [lo, hi] when empty.
func bound[T int | float64](v []T, lo, hi T) (T, T, error) {
	if len(v) == 0 {
		return lo, hi, nil
	}
	if len(v) != 2 {
		return lo, hi, errors.New("expected a [min, max] pair")
	}
	if v[0] > v[1] || v[0] < lo || v[1] > hi {
		return lo, hi, fmt.Errorf("invalid range [%v, %v]", v[0], v[1])
	}
	return v[0], v[1], nil
}
