package vigil

import "fmt"

// NoFacePolicy decides how frames without a detected face are handled.
type NoFacePolicy int

const (
	// NoFaceCapped counts the frame as closed, but caps the alert at EarlyWarning.
	NoFaceCapped NoFacePolicy = iota
	// NoFaceClosed counts the frame as closed with full severity.
	NoFaceClosed
	// NoFaceWarn leaves the counter untouched and only flags the frame.
	NoFaceWarn
)

// String returns the policy name.
func (p NoFacePolicy) String() string {
	switch p {
	case NoFaceCapped:
		return "capped"
	case NoFaceClosed:
		return "closed"
	case NoFaceWarn:
		return "warn"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParseNoFacePolicy converts a policy name into a NoFacePolicy.
func ParseNoFacePolicy(s string) (NoFacePolicy, error) {
	switch s {
	case "", "capped":
		return NoFaceCapped, nil
	case "closed":
		return NoFaceClosed, nil
	case "warn":
		return NoFaceWarn, nil
	}
	return NoFaceCapped, fmt.Errorf("unknown no-face policy %q", s)
}

// limit caps the alert raised on a no-face frame.
func (p NoFacePolicy) limit(a Alert) Alert {
	if p == NoFaceCapped && a == Confirmed {
		return Normal
	}
	return a
}
