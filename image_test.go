package vigil

import (
	"bytes"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImage_ToNRGBA(t *testing.T) {
	rect := image.Rect(-1, -1, 15, 15)
	colors := palette.Plan9
	testCases := []struct {
		name string
		img  image.Image
	}{
		{name: "NRGBA", img: makeNRGBAImage(rect, colors)},
		{name: "RGBA", img: makeRGBAImage(rect, colors)},
		{name: "YCbCr-444", img: makeYCbCrImage(rect, colors, image.YCbCrSubsampleRatio444)},
		{name: "YCbCr-422", img: makeYCbCrImage(rect, colors, image.YCbCrSubsampleRatio422)},
		{name: "YCbCr-420", img: makeYCbCrImage(rect, colors, image.YCbCrSubsampleRatio420)},
		{name: "YCbCr-440", img: makeYCbCrImage(rect, colors, image.YCbCrSubsampleRatio440)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := tc.img.Bounds()
			dst := ToNRGBA(tc.img)
			assert.Equal(t, image.Rect(0, 0, r.Dx(), r.Dy()), dst.Bounds())

			for y := r.Min.Y; y < r.Max.Y; y++ {
				for x := r.Min.X; x < r.Max.X; x++ {
					want := color.NRGBAModel.Convert(tc.img.At(x, y)).(color.NRGBA)
					got := dst.NRGBAAt(x-r.Min.X, y-r.Min.Y)
					if !closeColor(got, want, 1) {
						t.Fatalf("pixel (%d, %d): got %v want %v", x, y, got, want)
					}
				}
			}
		})
	}
}

func TestImage_ToNRGBAShouldKeepZeroBasedImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	assert.Same(t, img, ToNRGBA(img))
}

func TestImage_ShouldEncodeAndDecode(t *testing.T) {
	assert := assert.New(t)
	src := makeNRGBAImage(image.Rect(0, 0, 8, 8), palette.WebSafe)
	// Only opaque images survive the BMP round trip.
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 0xff
	}

	for _, ext := range []string{".png", ".bmp"} {
		var buf bytes.Buffer
		require.NoError(t, EncodeImage(&buf, src, ext))

		img, err := DecodeImage(&buf)
		require.NoError(t, err, ext)
		assert.Equal(src.Pix, img.Pix, ext)
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeImage(&buf, src, ""))
	img, err := DecodeImage(&buf)
	assert.NoError(err)
	assert.Equal(src.Bounds(), img.Bounds())
}

func TestImage_ShouldRejectUnsupportedFormats(t *testing.T) {
	assert := assert.New(t)

	_, err := DecodeImage(bytes.NewBufferString("definitely not an image"))
	assert.ErrorIs(err, ErrUnsupportedFormat)

	err = EncodeImage(&bytes.Buffer{}, image.NewNRGBA(image.Rect(0, 0, 1, 1)), ".tiff")
	assert.ErrorIs(err, ErrUnsupportedFormat)

	path := filepath.Join(t.TempDir(), "out.webp")
	err = EncodeImageFile(path, image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	assert.ErrorIs(err, ErrUnsupportedFormat)
	_, err = os.Stat(path)
	assert.True(os.IsNotExist(err))
}

func TestImage_ShouldEncodeImageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")
	src := makeNRGBAImage(image.Rect(0, 0, 4, 4), palette.Plan9)

	require.NoError(t, EncodeImageFile(path, src))
	img, err := DecodeImageFile(path)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, img.Pix)
}

func TestImage_ShouldConvertToGrayscale(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{A: 255})

	assert.Equal(t, []uint8{255, 0}, grayscale(img))
}

func closeColor(a, b color.NRGBA, delta int) bool {
	diff := func(x, y uint8) bool {
		d := int(x) - int(y)
		return d <= delta && d >= -delta
	}
	return diff(a.R, b.R) && diff(a.G, b.G) && diff(a.B, b.B) && diff(a.A, b.A)
}

func makeYCbCrImage(rect image.Rectangle, colors []color.Color, sr image.YCbCrSubsampleRatio) *image.YCbCr {
	img := image.NewYCbCr(rect, sr)
	j := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			iy := img.YOffset(x, y)
			ic := img.COffset(x, y)
			c := color.NRGBAModel.Convert(colors[j]).(color.NRGBA)
			img.Y[iy], img.Cb[ic], img.Cr[ic] = color.RGBToYCbCr(c.R, c.G, c.B)
			j++
		}
	}
	return img
}

func makeNRGBAImage(rect image.Rectangle, colors []color.Color) *image.NRGBA {
	img := image.NewNRGBA(rect)
	fillDrawImage(img, colors)
	return img
}

func makeRGBAImage(rect image.Rectangle, colors []color.Color) *image.RGBA {
	img := image.NewRGBA(rect)
	fillDrawImage(img, colors)
	return img
}

func fillDrawImage(img draw.Image, colors []color.Color) {
	colorsNRGBA := make([]color.NRGBA, len(colors))
	for i, c := range colors {
		nrgba := color.NRGBAModel.Convert(c).(color.NRGBA)
		nrgba.A = uint8(i % 256)
		colorsNRGBA[i] = nrgba
	}
	rect := img.Bounds()
	i := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.Set(x, y, colorsNRGBA[i%len(colorsNRGBA)])
			i++
		}
	}
}
