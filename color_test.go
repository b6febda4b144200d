package vigil

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

func TestColor_ToHSV(t *testing.T) {
	assert := assert.New(t)

	cases := []struct {
		rgb  RGB
		want HSV
	}{
		{RGB{255, 0, 0}, HSV{0, 1, 1}},
		{RGB{0, 255, 0}, HSV{120, 1, 1}},
		{RGB{0, 0, 255}, HSV{240, 1, 1}},
		{RGB{255, 0, 255}, HSV{300, 1, 1}},
		{RGB{0, 0, 0}, HSV{0, 0, 0}},
		{RGB{255, 255, 255}, HSV{0, 0, 1}},
	}
	for _, c := range cases {
		got := ToHSV(c.rgb)
		assert.InDelta(c.want.H, got.H, 1e-9, "%v", c.rgb)
		assert.InDelta(c.want.S, got.S, 1e-9, "%v", c.rgb)
		assert.InDelta(c.want.V, got.V, 1e-9, "%v", c.rgb)
	}
}

func TestColor_HSVRangeShouldWrapHue(t *testing.T) {
	assert := assert.New(t)
	red := HSVRange{HMin: 345, HMax: 15, SMin: 0, SMax: 1, VMin: 0, VMax: 1}

	assert.True(red.Match(RGB{}, HSV{H: 350, S: 1, V: 1}))
	assert.True(red.Match(RGB{}, HSV{H: 5, S: 1, V: 1}))
	assert.False(red.Match(RGB{}, HSV{H: 180, S: 1, V: 1}))
}

func TestColor_RGBRange(t *testing.T) {
	r := RGBRange{Min: RGB{100, 0, 0}, Max: RGB{200, 50, 50}}

	assert.True(t, r.Match(RGB{150, 20, 50}, HSV{}))
	assert.False(t, r.Match(RGB{250, 20, 20}, HSV{}))
}

func TestClassifier_ShouldClassifyDefaultPalette(t *testing.T) {
	c := NewClassifier(1, Exclusive)
	cases := map[string]color.NRGBA{
		"red":    {R: 230, G: 20, B: 20, A: 255},
		"green":  {R: 20, G: 200, B: 40, A: 255},
		"blue":   {R: 20, G: 40, B: 230, A: 255},
		"yellow": {R: 240, G: 230, B: 30, A: 255},
		"white":  {R: 250, G: 250, B: 250, A: 255},
		"black":  {R: 10, G: 10, B: 10, A: 255},
		"gray":   {R: 128, G: 128, B: 128, A: 255},
		"brown":  {R: 130, G: 80, B: 30, A: 255},
	}

	for name, col := range cases {
		hist := c.Classify(solid(4, 4, col))
		assert.Equal(t, []string{name}, hist.Names(), "color %v", col)
		assert.Equal(t, 16, hist.Sampled)
	}
}

func TestClassifier_ShouldRankByCountThenName(t *testing.T) {
	assert := assert.New(t)

	img := solid(10, 1, color.NRGBA{R: 20, G: 40, B: 230, A: 255})
	for x := 0; x < 3; x++ {
		img.SetNRGBA(x, 0, color.NRGBA{R: 230, G: 20, B: 20, A: 255})
	}
	for x := 3; x < 6; x++ {
		img.SetNRGBA(x, 0, color.NRGBA{R: 20, G: 200, B: 40, A: 255})
	}

	hist := NewClassifier(1, Exclusive).Classify(img)
	ranked := hist.Ranked()

	assert.Equal([]string{"blue", "green", "red"}, hist.Names())
	assert.Equal(4, ranked[0].Count)
	assert.InDelta(0.4, ranked[0].Share, 1e-12)
	assert.Equal(10, hist.Matched)
}

func TestClassifier_ShouldSampleWithStride(t *testing.T) {
	hist := NewClassifier(3, Exclusive).Classify(solid(10, 10, color.White))

	// Rows and columns 0, 3, 6 and 9 are sampled.
	assert.Equal(t, 16, hist.Sampled)
	assert.Equal(t, 16, hist.Counts["white"])
}

func TestClassifier_ShouldSkipTransparentPixels(t *testing.T) {
	img := solid(4, 4, color.NRGBA{})
	img.SetNRGBA(1, 1, color.NRGBA{R: 250, G: 250, B: 250, A: 255})

	hist := NewClassifier(1, Exclusive).Classify(img)
	assert.Equal(t, 1, hist.Sampled)
	assert.Equal(t, []string{"white"}, hist.Names())
}

func TestClassifier_MultiLabelShouldCountEveryMatch(t *testing.T) {
	assert := assert.New(t)
	// Brown overlaps with orange in the default palette.
	img := solid(2, 2, color.NRGBA{R: 130, G: 80, B: 30, A: 255})

	exclusive := NewClassifier(1, Exclusive).Classify(img)
	assert.Equal([]string{"brown"}, exclusive.Names())

	multi := NewClassifier(1, MultiLabel).Classify(img)
	assert.Equal([]string{"brown", "orange"}, multi.Names())
	assert.Equal(4, multi.Matched)
}

func TestClassifier_ShouldHandleOffsetBounds(t *testing.T) {
	img := solid(8, 8, color.NRGBA{R: 20, G: 40, B: 230, A: 255})
	sub := img.SubImage(image.Rect(2, 2, 6, 6))

	hist := NewClassifier(1, Exclusive).Classify(sub)
	assert.Equal(t, 16, hist.Sampled)
}

func TestMode_ShouldParseNames(t *testing.T) {
	assert := assert.New(t)

	m, err := ParseMode("multi")
	assert.NoError(err)
	assert.Equal(MultiLabel, m)
	assert.Equal("exclusive", Exclusive.String())

	_, err = ParseMode("all")
	assert.Error(err)
}
