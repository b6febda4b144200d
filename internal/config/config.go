// Package config loads the vigil settings from the environment.
// Values are read from the process environment after an optional .env file,
// and the command line flags override them afterwards.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/esimov/vigil"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every environment variable name.
const Prefix = "VIGIL_"

// Config holds the settings shared by the vigil commands.
type Config struct {
	// Monitoring
	Camera  int     `validate:"gte=0"`
	FPS     float64 `validate:"gt=0,lte=120"`
	EAR     float64 `validate:"gt=0,lt=1"`
	Early   int     `validate:"gt=0,ltfield=Confirm"`
	Confirm int     `validate:"gt=0"`
	MinEyes int     `validate:"gte=1"`
	NoFace  string  `validate:"oneof=capped closed warn"`

	// Detection
	FaceCascade   string `validate:"required"`
	PuplocCascade string `validate:"required"`
	LandmarkDir   string

	// Annotation
	TintOp   string
	TintMode string

	// Sounds
	Player    string
	EarlyClip string
	SleepClip string

	// Colors
	Stride  int    `validate:"gte=1"`
	Mode    string `validate:"oneof=exclusive multi"`
	Palette string

	// Service
	Addr       string  `validate:"required"`
	FrameRate  float64 `validate:"gt=0"`
	FrameBurst int     `validate:"gte=1"`
	MaxUpload  int     `validate:"gt=0"`
	PlaySounds bool

	// Logging
	LogLevel string `validate:"oneof=trace debug info warn warning error"`
	LogFile  string
}

// Default returns the built-in settings.
func Default() Config {
	th := vigil.DefaultThresholds()
	tint := vigil.DefaultTint()
	return Config{
		FPS:           15,
		EAR:           th.EAR,
		Early:         th.Early,
		Confirm:       th.Confirm,
		MinEyes:       2,
		NoFace:        vigil.NoFaceCapped.String(),
		FaceCascade:   "cascade/facefinder",
		PuplocCascade: "cascade/puploc",
		TintOp:        string(tint.Op),
		TintMode:      string(tint.Mode),
		Stride:        4,
		Mode:          vigil.Exclusive.String(),
		Addr:          ":8080",
		FrameRate:     30,
		FrameBurst:    5,
		MaxUpload:     16,
		LogLevel:      "info",
	}
}

// Load reads the optional env file (a missing file is not an error),
// then applies the VIGIL_* environment variables over the defaults.
func Load(envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("error loading the env file: %w", err)
		}
	}

	e := &env{}
	e.int("CAMERA", &cfg.Camera)
	e.float("FPS", &cfg.FPS)
	e.float("EAR_THRESHOLD", &cfg.EAR)
	e.int("EARLY_FRAMES", &cfg.Early)
	e.int("CONFIRM_FRAMES", &cfg.Confirm)
	e.int("MIN_EYES", &cfg.MinEyes)
	e.string("NO_FACE", &cfg.NoFace)
	e.string("FACE_CASCADE", &cfg.FaceCascade)
	e.string("PUPLOC_CASCADE", &cfg.PuplocCascade)
	e.string("LANDMARK_DIR", &cfg.LandmarkDir)
	e.string("TINT_OP", &cfg.TintOp)
	e.string("TINT_MODE", &cfg.TintMode)
	e.string("PLAYER", &cfg.Player)
	e.string("EARLY_CLIP", &cfg.EarlyClip)
	e.string("SLEEP_CLIP", &cfg.SleepClip)
	e.int("STRIDE", &cfg.Stride)
	e.string("MODE", &cfg.Mode)
	e.string("PALETTE", &cfg.Palette)
	e.string("ADDR", &cfg.Addr)
	e.float("FRAME_RATE", &cfg.FrameRate)
	e.int("FRAME_BURST", &cfg.FrameBurst)
	e.int("MAX_UPLOAD_MB", &cfg.MaxUpload)
	e.bool("PLAY_SOUNDS", &cfg.PlaySounds)
	e.string("LOG_LEVEL", &cfg.LogLevel)
	e.string("LOG_FILE", &cfg.LogFile)

	if len(e.errs) > 0 {
		return cfg, errors.Join(e.errs...)
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.Tint(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Tint returns the layer drawn over the annotated frames on confirmed sleep.
func (c Config) Tint() (vigil.Tint, error) {
	return vigil.NewTint(c.TintOp, c.TintMode)
}

// Thresholds returns the debouncing thresholds.
func (c Config) Thresholds() vigil.Thresholds {
	return vigil.Thresholds{
		EAR:     c.EAR,
		Early:   c.Early,
		Confirm: c.Confirm,
	}
}

// Monitor returns the monitoring session configuration.
func (c Config) Monitor() (vigil.MonitorConfig, error) {
	policy, err := vigil.ParseNoFacePolicy(c.NoFace)
	if err != nil {
		return vigil.MonitorConfig{}, err
	}
	return vigil.MonitorConfig{
		Thresholds: c.Thresholds(),
		MinEyes:    c.MinEyes,
		Policy:     policy,
	}, nil
}

// Clips returns the alert clips keyed by alert level.
func (c Config) Clips() map[vigil.Alert]string {
	return map[vigil.Alert]string{
		vigil.EarlyWarning: c.EarlyClip,
		vigil.Confirmed:    c.SleepClip,
	}
}

// env collects the parsing errors of the environment variables.
type env struct {
	errs []error
}

func (e *env) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(Prefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *env) string(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *env) int(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return
	}
	*dst = n
}

func (e *env) float(key string, dst *float64) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return
	}
	*dst = f
}

func (e *env) bool(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return
	}
	*dst = b
}
