package vigil

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
)

// ErrUnsupportedFormat is returned for image types that cannot be encoded or decoded.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// sniffLen is the number of bytes used to detect the content type.
const sniffLen = 512

// DecodeImage decodes an image from r after checking its content type,
// and returns it as *image.NRGBA with the min-point at (0, 0).
func DecodeImage(r io.Reader) (*image.NRGBA, error) {
	br := bufio.NewReaderSize(r, sniffLen)

	// Peek returns an error on inputs shorter than sniffLen, which is fine for detection.
	head, _ := br.Peek(sniffLen)
	ctype := http.DetectContentType(head)
	if !strings.HasPrefix(ctype, "image/") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ctype)
	}

	src, _, err := image.Decode(br)
	if err != nil {
		return nil, fmt.Errorf("could not decode the image: %w", err)
	}
	return ToNRGBA(src), nil
}

// DecodeImageFile opens and decodes an image file.
func DecodeImageFile(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open the image file: %w", err)
	}
	defer f.Close()

	return DecodeImage(f)
}

// EncodeImage encodes the image to w in the format selected by the extension.
// An empty extension encodes to JPEG.
func EncodeImage(w io.Writer, img image.Image, ext string) error {
	switch strings.ToLower(ext) {
	case "", ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case ".png":
		return png.Encode(w, img)
	case ".bmp":
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// EncodeImageFile encodes the image into a file, the format being selected by the file extension.
func EncodeImageFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create the destination file: %w", err)
	}
	if err := EncodeImage(f, img, filepath.Ext(path)); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// ToNRGBA converts any image type to *image.NRGBA with min-point at (0, 0).
func ToNRGBA(img image.Image) *image.NRGBA {
	srcBounds := img.Bounds()
	if srcBounds.Min.X == 0 && srcBounds.Min.Y == 0 {
		if src0, ok := img.(*image.NRGBA); ok {
			return src0
		}
	}
	srcMinX := srcBounds.Min.X
	srcMinY := srcBounds.Min.Y

	dstBounds := srcBounds.Sub(srcBounds.Min)
	dstW := dstBounds.Dx()
	dstH := dstBounds.Dy()
	dst := image.NewNRGBA(dstBounds)

	switch src := img.(type) {
	case *image.NRGBA:
		rowSize := dstW * 4
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			si := src.PixOffset(srcMinX, srcMinY+dstY)
			copy(dst.Pix[di:di+rowSize], src.Pix[si:si+rowSize])
		}
	case *image.YCbCr:
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			for dstX := 0; dstX < dstW; dstX++ {
				srcX := srcMinX + dstX
				srcY := srcMinY + dstY
				siy := src.YOffset(srcX, srcY)
				sic := src.COffset(srcX, srcY)
				r, g, b := color.YCbCrToRGB(src.Y[siy], src.Cb[sic], src.Cr[sic])
				dst.Pix[di+0] = r
				dst.Pix[di+1] = g
				dst.Pix[di+2] = b
				dst.Pix[di+3] = 0xff
				di += 4
			}
		}
	default:
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			for dstX := 0; dstX < dstW; dstX++ {
				c := color.NRGBAModel.Convert(img.At(srcMinX+dstX, srcMinY+dstY)).(color.NRGBA)
				dst.Pix[di+0] = c.R
				dst.Pix[di+1] = c.G
				dst.Pix[di+2] = c.B
				dst.Pix[di+3] = c.A
				di += 4
			}
		}
	}

	return dst
}

// grayscale converts an image to grayscale and returns the luminance
// values as a one dimensional, row major array.
func grayscale(src *image.NRGBA) []uint8 {
	width, height := src.Bounds().Dx(), src.Bounds().Dy()
	gray := make([]uint8, width*height)

	for y := 0; y < height; y++ {
		i := src.PixOffset(0, y)
		for x := 0; x < width; x++ {
			r, g, b := src.Pix[i], src.Pix[i+1], src.Pix[i+2]
			gray[y*width+x] = uint8(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b) + 0.5)
			i += 4
		}
	}

	return gray
}
