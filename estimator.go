package vigil

import "fmt"

// EyeState is the per-frame classification of the eyes.
type EyeState int

const (
	EyesOpen EyeState = iota
	EyesClosed
	NoFace
	// Indeterminate marks frames whose landmarks could not be measured.
	Indeterminate
)

// String returns the eye state name.
func (s EyeState) String() string {
	switch s {
	case EyesOpen:
		return "open"
	case EyesClosed:
		return "closed"
	case NoFace:
		return "no_face"
	case Indeterminate:
		return "indeterminate"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s EyeState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *EyeState) UnmarshalText(text []byte) error {
	for st := EyesOpen; st <= Indeterminate; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown eye state %q", text)
}

// EyeReading is the detector output for a single frame.
// Cascade based detectors report only the number of eyes found,
// landmark models report the six point contour of every eye.
type EyeReading struct {
	FaceFound bool           `json:"face_found"`
	EyesFound int            `json:"eyes_found"`
	Eyes      []EyeLandmarks `json:"eyes,omitempty"`
}

// Estimate is the result of the eye state estimation.
type Estimate struct {
	State  EyeState
	EAR    float64
	HasEAR bool
}

// Estimator classifies an EyeReading as open or closed.
type Estimator struct {
	threshold float64
	minEyes   int
}

// NewEstimator creates an Estimator. Eyes with an aspect ratio below earThreshold are closed,
// and cascade readings with fewer than minEyes detected eyes are closed.
func NewEstimator(earThreshold float64, minEyes int) *Estimator {
	if minEyes <= 0 {
		minEyes = 2
	}
	return &Estimator{
		threshold: earThreshold,
		minEyes:   minEyes,
	}
}

// Estimate classifies the reading.
func (e *Estimator) Estimate(r EyeReading) Estimate {
	if !r.FaceFound {
		return Estimate{State: NoFace}
	}

	if len(r.Eyes) > 0 {
		ear, err := MeanEAR(r.Eyes...)
		if err != nil {
			return Estimate{State: Indeterminate}
		}
		state := EyesOpen
		if ear < e.threshold {
			state = EyesClosed
		}
		return Estimate{State: state, EAR: ear, HasEAR: true}
	}

	if r.EyesFound < e.minEyes {
		return Estimate{State: EyesClosed}
	}
	return Estimate{State: EyesOpen}
}
