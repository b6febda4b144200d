package vigil

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePalette = `
colors:
  - name: skin
    rgb: {r: [180, 255], g: [120, 210], b: [90, 180]}
  - name: red
    hsv: {h: [345, 15], s: [0.3, 1], v: [0.2, 1]}
  - name: any
    hsv: {}
`

func TestPalette_ShouldLoadYAML(t *testing.T) {
	assert := assert.New(t)

	p, err := LoadPalette(strings.NewReader(samplePalette))
	require.NoError(t, err)
	assert.Equal([]string{"skin", "red", "any"}, p.Names())

	skin, ok := p[0].Match.(RGBRange)
	require.True(t, ok)
	assert.Equal(RGB{180, 120, 90}, skin.Min)
	assert.Equal(RGB{255, 210, 180}, skin.Max)

	red, ok := p[1].Match.(HSVRange)
	require.True(t, ok)
	assert.Equal(HSVRange{HMin: 345, HMax: 15, SMin: 0.3, SMax: 1, VMin: 0.2, VMax: 1}, red)

	assert.Equal(HSVRange{HMin: 0, HMax: 360, SMin: 0, SMax: 1, VMin: 0, VMax: 1}, p[2].Match)
}

func TestPalette_ShouldClassifyWithCustomPalette(t *testing.T) {
	p, err := LoadPalette(strings.NewReader(samplePalette))
	require.NoError(t, err)

	c := &Classifier{Palette: p, Stride: 1, Mode: Exclusive}
	hist := c.Classify(solid(2, 2, color.NRGBA{R: 220, G: 160, B: 130, A: 255}))

	assert.Equal(t, []string{"skin"}, hist.Names())
}

func TestPalette_ShouldRejectInvalidFiles(t *testing.T) {
	cases := map[string]string{
		"empty":     "colors: []",
		"no name":   "colors:\n  - hsv: {}",
		"duplicate": "colors:\n  - name: a\n    hsv: {}\n  - name: a\n    hsv: {}",
		"both":      "colors:\n  - name: a\n    hsv: {}\n    rgb: {}",
		"no bounds": "colors:\n  - name: a",
		"bad range": "colors:\n  - name: a\n    rgb: {r: [200, 100]}",
		"overflow":  "colors:\n  - name: a\n    rgb: {g: [0, 300]}",
		"bad hue":   "colors:\n  - name: a\n    hsv: {h: [0, 400]}",
		"hue start": "colors:\n  - name: a\n    hsv: {h: [400, 10]}",
		"hue end":   "colors:\n  - name: a\n    hsv: {h: [10, -5]}",
		"hue below": "colors:\n  - name: a\n    hsv: {h: [-20, 10]}",
		"one hue":   "colors:\n  - name: a\n    hsv: {h: [10]}",
		"not yaml":  "colors: [",
	}
	for name, src := range cases {
		_, err := LoadPalette(strings.NewReader(src))
		assert.Error(t, err, name)
	}
}

func TestPalette_ShouldLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "palette.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePalette), 0o644))

	p, err := LoadPaletteFile(path)
	assert.NoError(t, err)
	assert.Len(t, p, 3)

	_, err = LoadPaletteFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
