// Package preview shows the annotated camera frames in a Gio window.
package preview

import (
	"image"
	"image/color"
	"math"
	"sync"

	"gioui.org/app"
	"gioui.org/font/gofont"
	"gioui.org/io/key"
	"gioui.org/io/system"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"github.com/esimov/vigil"
)

type (
	C = layout.Context
	D = layout.Dimensions
)

const (
	maxScreenX = 1366
	maxScreenY = 768
)

var (
	bkgColor = color.NRGBA{R: 0x12, G: 0x12, B: 0x12, A: 0xff}
	fgColor  = color.NRGBA{R: 0x10, G: 0x10, B: 0x10, A: 0xff}
)

// Preview is a window displaying the latest frame with a status bar colored by the session status.
// Update may be called from any goroutine, Run must be called from its own goroutine
// while app.Main runs on the main one.
type Preview struct {
	mu      sync.Mutex
	frame   image.Image
	status  vigil.Status
	caption string

	win   *app.Window
	theme *material.Theme
}

// New creates the preview window sized after the frame dimensions.
func New(title string, width, height int) *Preview {
	w, h := fitSize(width, height)

	win := new(app.Window)
	win.Option(
		app.Title(title),
		app.Size(unit.Dp(w), unit.Dp(h+statusHeight)),
	)

	th := material.NewTheme()
	th.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))

	return &Preview{
		win:   win,
		theme: th,
	}
}

// statusHeight is the height of the status bar, in dp.
const statusHeight = 48

// Update replaces the displayed frame and status.
func (p *Preview) Update(frame image.Image, status vigil.Status, caption string) {
	p.mu.Lock()
	p.frame = frame
	p.status = status
	p.caption = caption
	p.mu.Unlock()

	p.win.Invalidate()
}

// Run processes the window events until the window is closed, with ESC or otherwise.
func (p *Preview) Run() error {
	var ops op.Ops

	for {
		switch e := p.win.Event().(type) {
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)

			for {
				ev, ok := gtx.Event(key.Filter{Name: key.NameEscape})
				if !ok {
					break
				}
				if ke, ok := ev.(key.Event); ok && ke.State == key.Press {
					p.win.Perform(system.ActionClose)
				}
			}

			p.layout(gtx)
			e.Frame(gtx.Ops)
		case app.DestroyEvent:
			return e.Err
		}
	}
}

// layout draws the frame above the status bar.
func (p *Preview) layout(gtx C) D {
	p.mu.Lock()
	frame, status, caption := p.frame, p.status, p.caption
	p.mu.Unlock()

	paint.Fill(gtx.Ops, bkgColor)

	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Flexed(1, func(gtx C) D {
			if frame == nil {
				return D{Size: gtx.Constraints.Max}
			}
			return widget.Image{
				Src: paint.NewImageOp(frame),
				Fit: widget.Contain,
			}.Layout(gtx)
		}),
		layout.Rigid(func(gtx C) D {
			return p.statusBar(gtx, status, caption)
		}),
	)
}

// statusBar displays the status label and the caption over the status color.
func (p *Preview) statusBar(gtx C, status vigil.Status, caption string) D {
	size := image.Pt(gtx.Constraints.Max.X, gtx.Dp(statusHeight))
	gtx.Constraints = layout.Exact(size)

	paint.FillShape(gtx.Ops, status.Color(), clip.Rect{Max: size}.Op())

	msg := status.String()
	if caption != "" {
		msg += "  " + caption
	}
	lbl := material.Label(p.theme, unit.Sp(20), msg)
	lbl.Color = fgColor

	return layout.UniformInset(unit.Dp(10)).Layout(gtx, func(gtx C) D {
		return layout.W.Layout(gtx, lbl.Layout)
	})
}

// Main hands the calling goroutine over to the window event loop.
// It must be called from the main goroutine and it never returns.
func Main() {
	app.Main()
}

// fitSize keeps the frame aspect ratio while fitting it inside the predefined screen size.
func fitSize(width, height int) (float32, float32) {
	w, h := float64(width), float64(height)
	if w <= 0 || h <= 0 {
		return 640, 480
	}

	if w > maxScreenX || h > maxScreenY {
		ratio := math.Min(maxScreenX/w, maxScreenY/h)
		w *= ratio
		h *= ratio
	}
	return float32(w), float32(h)
}
