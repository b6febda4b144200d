package vigil

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// RGB is an 8 bit per channel color sample.
type RGB struct {
	R, G, B uint8
}

// HSV is a color in the hue, saturation, value space.
// H is expressed in degrees [0, 360), S and V in [0, 1].
type HSV struct {
	H, S, V float64
}

// ToHSV converts an RGB color to HSV.
func ToHSV(c RGB) HSV {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255

	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	delta := max - min

	var h float64
	switch {
	case delta == 0:
		h = 0
	case max == r:
		h = 60 * math.Mod((g-b)/delta, 6)
	case max == g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}

	var s float64
	if max > 0 {
		s = delta / max
	}
	return HSV{H: h, S: s, V: max}
}

// Predicate decides whether a pixel belongs to a named color.
type Predicate interface {
	Match(RGB, HSV) bool
}

// RGBRange matches colors whose channels are all inside the inclusive [Min, Max] bounds.
type RGBRange struct {
	Min, Max RGB
}

// Match implements the Predicate interface.
func (r RGBRange) Match(c RGB, _ HSV) bool {
	return c.R >= r.Min.R && c.R <= r.Max.R &&
		c.G >= r.Min.G && c.G <= r.Max.G &&
		c.B >= r.Min.B && c.B <= r.Max.B
}

// HSVRange matches colors inside the inclusive hue, saturation and value bounds.
// The hue range wraps around 360 degrees when HMin is greater than HMax.
type HSVRange struct {
	HMin, HMax float64
	SMin, SMax float64
	VMin, VMax float64
}

// Match implements the Predicate interface.
func (r HSVRange) Match(_ RGB, c HSV) bool {
	if c.S < r.SMin || c.S > r.SMax || c.V < r.VMin || c.V > r.VMax {
		return false
	}
	if r.HMin <= r.HMax {
		return c.H >= r.HMin && c.H <= r.HMax
	}
	return c.H >= r.HMin || c.H <= r.HMax
}

// NamedColor binds a color name to its predicate.
type NamedColor struct {
	Name  string
	Match Predicate
}

// Palette is an ordered list of named colors.
// In Exclusive mode the first matching color wins.
type Palette []NamedColor

// Names returns the palette color names in order.
func (p Palette) Names() []string {
	names := make([]string, 0, len(p))
	for _, c := range p {
		names = append(names, c.Name)
	}
	return names
}

// DefaultPalette returns the built-in palette. Achromatic colors come first,
// then brown ahead of the hues it overlaps with.
func DefaultPalette() Palette {
	chroma := func(hmin, hmax float64) HSVRange {
		return HSVRange{HMin: hmin, HMax: hmax, SMin: 0.15, SMax: 1, VMin: 0.2, VMax: 1}
	}
	return Palette{
		{Name: "black", Match: HSVRange{HMin: 0, HMax: 360, SMin: 0, SMax: 1, VMin: 0, VMax: 0.2}},
		{Name: "white", Match: HSVRange{HMin: 0, HMax: 360, SMin: 0, SMax: 0.15, VMin: 0.85, VMax: 1}},
		{Name: "gray", Match: HSVRange{HMin: 0, HMax: 360, SMin: 0, SMax: 0.15, VMin: 0.2, VMax: 0.85}},
		{Name: "brown", Match: HSVRange{HMin: 10, HMax: 40, SMin: 0.4, SMax: 1, VMin: 0.2, VMax: 0.6}},
		{Name: "red", Match: chroma(345, 15)},
		{Name: "orange", Match: chroma(15, 40)},
		{Name: "yellow", Match: chroma(40, 70)},
		{Name: "green", Match: chroma(70, 165)},
		{Name: "cyan", Match: chroma(165, 200)},
		{Name: "blue", Match: chroma(200, 255)},
		{Name: "purple", Match: chroma(255, 320)},
		{Name: "pink", Match: chroma(320, 345)},
	}
}

// Mode selects how many labels a pixel may receive.
type Mode int

const (
	// Exclusive assigns each pixel to the first matching color.
	Exclusive Mode = iota
	// MultiLabel counts every matching color for each pixel.
	MultiLabel
)

// String returns the mode name.
func (m Mode) String() string {
	if m == MultiLabel {
		return "multi"
	}
	return "exclusive"
}

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "exclusive":
		return Exclusive, nil
	case "multi":
		return MultiLabel, nil
	}
	return Exclusive, fmt.Errorf("unknown classification mode %q", s)
}

// ColorCount is a single entry of the color frequency table.
type ColorCount struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

// Histogram is the color frequency table of a classified image.
type Histogram struct {
	Counts  map[string]int
	Sampled int
	Matched int
}

// Ranked returns the colors with at least one hit, by decreasing count then by name.
func (h Histogram) Ranked() []ColorCount {
	res := make([]ColorCount, 0, len(h.Counts))
	for name, n := range h.Counts {
		if n == 0 {
			continue
		}
		cc := ColorCount{Name: name, Count: n}
		if h.Sampled > 0 {
			cc.Share = float64(n) / float64(h.Sampled)
		}
		res = append(res, cc)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Count != res[j].Count {
			return res[i].Count > res[j].Count
		}
		return res[i].Name < res[j].Name
	})
	return res
}

// Names returns the ranked color names.
func (h Histogram) Names() []string {
	ranked := h.Ranked()
	names := make([]string, len(ranked))
	for i, c := range ranked {
		names[i] = c.Name
	}
	return names
}

// Classifier samples image pixels and classifies them against a palette.
type Classifier struct {
	Palette Palette
	// Stride is the sampling step on both axes. Values below 1 sample every pixel.
	Stride int
	Mode   Mode
}

// NewClassifier creates a Classifier with the default palette.
func NewClassifier(stride int, mode Mode) *Classifier {
	return &Classifier{
		Palette: DefaultPalette(),
		Stride:  stride,
		Mode:    mode,
	}
}

// Classify samples the image every Stride pixels and accumulates the color hits.
// Fully transparent pixels are not sampled.
func (c *Classifier) Classify(src image.Image) Histogram {
	img := ToNRGBA(src)
	stride := c.Stride
	if stride < 1 {
		stride = 1
	}
	palette := c.Palette
	if len(palette) == 0 {
		palette = DefaultPalette()
	}

	hist := Histogram{Counts: make(map[string]int, len(palette))}
	bounds := img.Bounds()

	for y := bounds.Min.Y; y < bounds.Max.Y; y += stride {
		for x := bounds.Min.X; x < bounds.Max.X; x += stride {
			i := img.PixOffset(x, y)
			if img.Pix[i+3] == 0 {
				continue
			}
			px := RGB{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2]}
			hsv := ToHSV(px)
			hist.Sampled++

			matched := false
			for _, nc := range palette {
				if !nc.Match.Match(px, hsv) {
					continue
				}
				hist.Counts[nc.Name]++
				matched = true
				if c.Mode == Exclusive {
					break
				}
			}
			if matched {
				hist.Matched++
			}
		}
	}
	return hist
}
