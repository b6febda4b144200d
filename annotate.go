package vigil

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/esimov/vigil/imop"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Status is the user facing state of a monitoring session.
type Status int

const (
	StatusAlert Status = iota
	StatusClosing
	StatusSleep
	StatusNoFace
)

var statusLabels = map[Status]string{
	StatusAlert:   "ALERT",
	StatusClosing: "EYES CLOSING",
	StatusSleep:   "SLEEP DETECTED!",
	StatusNoFace:  "NO FACE",
}

// String returns the label drawn over the frame.
func (s Status) String() string {
	return statusLabels[s]
}

// Color returns the label color of the status.
func (s Status) Color() color.NRGBA {
	switch s {
	case StatusClosing:
		return color.NRGBA{R: 0xff, G: 0xbf, A: 0xff}
	case StatusSleep:
		return color.NRGBA{R: 0xff, A: 0xff}
	case StatusNoFace:
		return color.NRGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff}
	default:
		return color.NRGBA{G: 0xff, A: 0xff}
	}
}

// StatusOf derives the status of a verdict. The closing and sleep states
// last for as long as the eyes stay closed, not only on the frame raising the alert.
func StatusOf(v Verdict, th Thresholds) Status {
	switch {
	case v.NoFace:
		return StatusNoFace
	case v.Alert == Confirmed || v.Counter >= th.Confirm:
		return StatusSleep
	case v.Alert == EarlyWarning || v.Counter >= th.Early:
		return StatusClosing
	default:
		return StatusAlert
	}
}

var (
	faceColor     = color.NRGBA{B: 0xff, A: 0xff}
	eyeColor      = color.NRGBA{G: 0xff, A: 0xff}
	landmarkColor = color.NRGBA{R: 0xff, G: 0xff, A: 0xff}
	sleepTint     = color.NRGBA{R: 0xff, G: 0x30, B: 0x30, A: 0x60}
)

// Tint is the color layer composited over the frames of a confirmed sleep.
type Tint struct {
	Color color.NRGBA
	Op    imop.Op
	Mode  imop.Mode
}

// DefaultTint multiplies a translucent red over the frame.
func DefaultTint() Tint {
	return Tint{Color: sleepTint, Op: imop.SrcOver, Mode: imop.Multiply}
}

// NewTint returns the default tint color composited with the named operator and blend mode.
func NewTint(op, mode string) (Tint, error) {
	t := DefaultTint()

	var err error
	if t.Op, err = imop.ParseOp(op); err != nil {
		return t, err
	}
	if t.Mode, err = imop.ParseMode(mode); err != nil {
		return t, err
	}
	return t, nil
}

// labelOrigin is the baseline origin of the status label.
var labelOrigin = image.Pt(50, 50)

// labelScale is the magnification factor of the bitmap font.
const labelScale = 2

// Annotate draws the detected faces and the session status over a copy of the frame.
// A confirmed sleep tints the whole frame.
func Annotate(img image.Image, faces []Face, status Status, tint Tint) *image.NRGBA {
	dst := imaging.Clone(img)

	if status == StatusSleep {
		dst = imop.Tint(dst, tint.Color, tint.Op, tint.Mode)
	}

	for _, f := range faces {
		strokeRect(dst, f.Rect, 2, faceColor)
		for _, p := range f.Eyes {
			r := int(float64(f.Rect.Dx()) * 0.08)
			strokeRect(dst, image.Rect(int(p.X)-r, int(p.Y)-r, int(p.X)+r, int(p.Y)+r), 2, eyeColor)
		}
		for _, p := range f.Landmarks {
			fillRect(dst, image.Rect(int(p.X)-1, int(p.Y)-1, int(p.X)+2, int(p.Y)+2), landmarkColor)
		}
	}
	drawLabel(dst, status.String(), labelOrigin, status.Color())

	return dst
}

// drawLabel renders the text with the basic bitmap font, magnifies it
// and draws it with its baseline starting at the origin.
func drawLabel(dst *image.NRGBA, text string, origin image.Point, col color.NRGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()
	if width == 0 {
		return
	}

	lbl := image.NewNRGBA(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  lbl,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	lbl = imaging.Resize(lbl, width*labelScale, height*labelScale, imaging.NearestNeighbor)
	pos := image.Pt(origin.X, origin.Y-face.Metrics().Ascent.Ceil()*labelScale)
	draw.Draw(dst, lbl.Bounds().Add(pos), lbl, image.Point{}, draw.Over)
}

func strokeRect(dst *image.NRGBA, r image.Rectangle, thickness int, col color.NRGBA) {
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness), col)
	fillRect(dst, image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y), col)
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y), col)
	fillRect(dst, image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y), col)
}

func fillRect(dst *image.NRGBA, r image.Rectangle, col color.NRGBA) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(col), image.Point{}, draw.Src)
}
