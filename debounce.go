package vigil

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Alert is the severity level emitted by the Debouncer on each frame.
type Alert int

// The supported alert levels, ordered by severity.
const (
	Normal Alert = iota
	EarlyWarning
	Confirmed
)

// String returns the alert name.
func (a Alert) String() string {
	switch a {
	case Normal:
		return "normal"
	case EarlyWarning:
		return "early_warning"
	case Confirmed:
		return "confirmed"
	}
	return fmt.Sprintf("alert(%d)", int(a))
}

// MarshalText implements encoding.TextMarshaler.
func (a Alert) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Alert) UnmarshalText(text []byte) error {
	lvl, err := ParseAlert(string(text))
	if err != nil {
		return err
	}
	*a = lvl
	return nil
}

// ParseAlert converts an alert name into an Alert.
// The short forms "early" and "sleep" are accepted as well.
func ParseAlert(s string) (Alert, error) {
	switch s {
	case "normal":
		return Normal, nil
	case "early_warning", "early":
		return EarlyWarning, nil
	case "confirmed", "sleep":
		return Confirmed, nil
	}
	return Normal, fmt.Errorf("unknown alert level %q", s)
}

// Thresholds holds the tunable parameters of the eye state estimation and debouncing.
type Thresholds struct {
	// EAR is the eye aspect ratio below which an eye is considered closed.
	EAR float64 `validate:"gt=0,lt=1"`
	// Early is the number of consecutive closed frames raising the early warning.
	Early int `validate:"gt=0,ltfield=Confirm"`
	// Confirm is the number of consecutive closed frames confirming sleep.
	Confirm int `validate:"gt=0"`
}

// DefaultThresholds returns the thresholds used by the reference drowsiness detector.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EAR:     0.25,
		Early:   5,
		Confirm: 15,
	}
}

// Validate checks the thresholds for consistency.
func (t Thresholds) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	return nil
}

// Debouncer turns a per-frame closed/open signal into escalating alerts.
// It counts consecutive closed frames and resets on the first open frame.
// The latency of the alerts depends on the upstream frame rate.
type Debouncer struct {
	th      Thresholds
	counter int
}

// NewDebouncer creates a Debouncer with a zero counter.
func NewDebouncer(th Thresholds) *Debouncer {
	return &Debouncer{th: th}
}

// Update registers one frame and returns the alert level for it.
// EarlyWarning fires once per closure episode, exactly when the counter reaches
// the early threshold. Confirmed fires on every frame from the confirm threshold onward.
func (d *Debouncer) Update(closed bool) Alert {
	if !closed {
		d.counter = 0
		return Normal
	}
	if d.counter < math.MaxInt {
		d.counter++
	}

	switch {
	case d.counter == d.th.Early:
		return EarlyWarning
	case d.counter >= d.th.Confirm:
		return Confirmed
	}
	return Normal
}

// Counter returns the number of consecutive closed frames.
func (d *Debouncer) Counter() int {
	return d.counter
}

// Reset clears the consecutive closed frames counter.
func (d *Debouncer) Reset() {
	d.counter = 0
}

// Thresholds returns the debouncer configuration.
func (d *Debouncer) Thresholds() Thresholds {
	return d.th
}
