package imop

import (
	"fmt"
	"image"
	"image/color"

	"github.com/esimov/vigil/utils"
)

// Op is a Porter-Duff composition operator.
type Op string

// The supported composition operators.
const (
	Clear   Op = "clear"
	Copy    Op = "copy"
	Dst     Op = "dst"
	SrcOver Op = "src_over"
	DstOver Op = "dst_over"
	SrcIn   Op = "src_in"
	DstIn   Op = "dst_in"
	SrcOut  Op = "src_out"
	DstOut  Op = "dst_out"
	SrcAtop Op = "src_atop"
	DstAtop Op = "dst_atop"
	Xor     Op = "xor"
)

var ops = []Op{Clear, Copy, Dst, SrcOver, DstOver, SrcIn, DstIn, SrcOut, DstOut, SrcAtop, DstAtop, Xor}

// ParseOp returns the composition operator with the given name.
func ParseOp(s string) (Op, error) {
	for _, op := range ops {
		if string(op) == s {
			return op, nil
		}
	}
	return SrcOver, fmt.Errorf("unsupported composite operation: %q", s)
}

// factors returns the source and backdrop contributions
// for the source alpha as and the backdrop alpha ab.
func (op Op) factors(as, ab float64) (float64, float64) {
	switch op {
	case Clear:
		return 0, 0
	case Copy:
		return 1, 0
	case Dst:
		return 0, 1
	case DstOver:
		return 1 - ab, 1
	case SrcIn:
		return ab, 0
	case DstIn:
		return 0, as
	case SrcOut:
		return 1 - ab, 0
	case DstOut:
		return 0, 1 - as
	case SrcAtop:
		return ab, 1 - as
	case DstAtop:
		return 1 - ab, as
	case Xor:
		return 1 - ab, 1 - as
	default:
		return 1, 1 - as
	}
}

// Draw composites the source over the backdrop and returns the result as a new image
// with the backdrop bounds. The source color is first mixed with the backdrop
// through the blend mode, then the composition operator is applied.
func Draw(src, dst *image.NRGBA, op Op, mode Mode) *image.NRGBA {
	bounds := dst.Bounds()
	out := image.NewNRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var s color.NRGBA
			if (image.Point{X: x, Y: y}).In(src.Bounds()) {
				s = src.NRGBAAt(x, y)
			}
			out.SetNRGBA(x, y, compose(s, dst.NRGBAAt(x, y), op, mode))
		}
	}
	return out
}

// Tint composites a uniform color layer over the image.
func Tint(img *image.NRGBA, c color.NRGBA, op Op, mode Mode) *image.NRGBA {
	src := image.NewNRGBA(img.Bounds())
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return Draw(src, img, op, mode)
}

func compose(s, b color.NRGBA, op Op, mode Mode) color.NRGBA {
	as, ab := float64(s.A)/255, float64(b.A)/255
	fa, fb := op.factors(as, ab)

	ao := as*fa + ab*fb
	if ao <= 0 {
		return color.NRGBA{}
	}

	channel := func(cs, cb uint8) uint8 {
		csn, cbn := float64(cs)/255, float64(cb)/255
		// The source color is mixed with the backdrop where the backdrop is visible.
		mixed := (1-ab)*csn + ab*mode.blend(cbn, csn)
		co := (as*fa*mixed + ab*fb*cbn) / ao
		return uint8(utils.Clamp(co*255+1e-6, 0, 255))
	}

	return color.NRGBA{
		R: channel(s.R, b.R),
		G: channel(s.G, b.G),
		B: channel(s.B, b.B),
		A: uint8(utils.Clamp(ao*255+1e-6, 0, 255)),
	}
}
