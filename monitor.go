package vigil

import (
	"fmt"

	"github.com/google/uuid"
)

// MonitorConfig holds the configuration of a monitoring session.
type MonitorConfig struct {
	Thresholds
	// MinEyes is the number of eyes a cascade reading needs to count as open.
	MinEyes int
	Policy  NoFacePolicy
}

// DefaultMonitorConfig returns the default session configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Thresholds: DefaultThresholds(),
		MinEyes:    2,
		Policy:     NoFaceCapped,
	}
}

// Verdict is the outcome of a single observed frame.
type Verdict struct {
	Frame   uint64   `json:"frame"`
	State   EyeState `json:"state"`
	EAR     float64  `json:"ear,omitempty"`
	Alert   Alert    `json:"alert"`
	Counter int      `json:"counter"`
	NoFace  bool     `json:"no_face,omitempty"`
	Skipped bool     `json:"skipped,omitempty"`
}

// Stats accumulates the session counters.
type Stats struct {
	Frames       uint64 `json:"frames"`
	ClosedFrames uint64 `json:"closed_frames"`
	NoFaceFrames uint64 `json:"no_face_frames"`
	Skipped      uint64 `json:"skipped"`
	EarlyAlerts  uint64 `json:"early_alerts"`
	SleepAlerts  uint64 `json:"sleep_alerts"`
}

// Monitor is a drowsiness monitoring session. It owns the debounce state
// for the lifetime of the session and it is not safe for concurrent use.
type Monitor struct {
	ID string

	cfg      MonitorConfig
	est      *Estimator
	deb      *Debouncer
	notifier Notifier
	stats    Stats
}

// NewMonitor validates the configuration and starts a new session.
func NewMonitor(cfg MonitorConfig, n Notifier) (*Monitor, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinEyes <= 0 {
		cfg.MinEyes = 2
	}
	if cfg.Policy < NoFaceCapped || cfg.Policy > NoFaceWarn {
		return nil, fmt.Errorf("invalid no-face policy: %v", cfg.Policy)
	}
	if n == nil {
		n = Discard
	}

	return &Monitor{
		ID:       uuid.NewString(),
		cfg:      cfg,
		est:      NewEstimator(cfg.EAR, cfg.MinEyes),
		deb:      NewDebouncer(cfg.Thresholds),
		notifier: n,
	}, nil
}

// Observe processes one frame reading and notifies the raised alert, if any.
func (m *Monitor) Observe(r EyeReading) Verdict {
	m.stats.Frames++
	est := m.est.Estimate(r)

	v := Verdict{
		Frame: m.stats.Frames,
		State: est.State,
		EAR:   est.EAR,
	}

	switch est.State {
	case Indeterminate:
		m.stats.Skipped++
		v.Skipped = true
		v.Counter = m.deb.Counter()
		return v
	case NoFace:
		m.stats.NoFaceFrames++
		v.NoFace = true
		if m.cfg.Policy == NoFaceWarn {
			v.Counter = m.deb.Counter()
			return v
		}
		v.Alert = m.cfg.Policy.limit(m.deb.Update(true))
	case EyesClosed:
		m.stats.ClosedFrames++
		v.Alert = m.deb.Update(true)
	default:
		v.Alert = m.deb.Update(false)
	}
	v.Counter = m.deb.Counter()

	switch v.Alert {
	case EarlyWarning:
		m.stats.EarlyAlerts++
		m.notifier.Notify(v.Alert)
	case Confirmed:
		m.stats.SleepAlerts++
		m.notifier.Notify(v.Alert)
	}
	return v
}

// Stats returns a copy of the session counters.
func (m *Monitor) Stats() Stats {
	return m.stats
}

// Config returns the session configuration.
func (m *Monitor) Config() MonitorConfig {
	return m.cfg
}

// Reset clears the debounce state without touching the statistics.
func (m *Monitor) Reset() {
	m.deb.Reset()
}
