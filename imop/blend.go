// Package imop implements the blend modes and the Porter-Duff composition
// operations used for mixing a graphic element with its backdrop.
// The image/draw core package implements only the source-over-destination
// and source operators; this package covers the rest of them.
//
// It is used for tinting the annotated frames by the alert severity.
package imop

import (
	"fmt"

	"github.com/esimov/vigil/utils"
)

// Mode is a separable blend mode, applied on each color channel independently.
type Mode string

// The supported blend modes.
const (
	Normal   Mode = "normal"
	Darken   Mode = "darken"
	Lighten  Mode = "lighten"
	Multiply Mode = "multiply"
	Screen   Mode = "screen"
	Overlay  Mode = "overlay"
)

var modes = []Mode{Normal, Darken, Lighten, Multiply, Screen, Overlay}

// ParseMode returns the blend mode with the given name.
func ParseMode(s string) (Mode, error) {
	for _, m := range modes {
		if string(m) == s {
			return m, nil
		}
	}
	return Normal, fmt.Errorf("unsupported blend mode: %q", s)
}

// blend mixes the backdrop cb with the source cs. Both are in the [0, 1] range.
func (m Mode) blend(cb, cs float64) float64 {
	switch m {
	case Darken:
		return utils.Min(cb, cs)
	case Lighten:
		return utils.Max(cb, cs)
	case Multiply:
		return cb * cs
	case Screen:
		return cb + cs - cb*cs
	case Overlay:
		// Overlay is the hard light mode with the layers swapped.
		if cb <= 0.5 {
			return 2 * cb * cs
		}
		return 1 - 2*(1-cb)*(1-cs)
	default:
		return cs
	}
}
