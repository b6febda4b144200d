package server

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"mime/multipart"
	"path/filepath"
	"time"

	"github.com/esimov/vigil"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// sessionConfig is the tunable part of a session, as sent by the clients.
type sessionConfig struct {
	EAR     float64 `json:"ear" validate:"gt=0,lt=1"`
	Early   int     `json:"early_frames" validate:"gt=0,ltfield=Confirm"`
	Confirm int     `json:"confirm_frames" validate:"gt=0"`
	MinEyes int     `json:"min_eyes" validate:"gte=1"`
	NoFace  string  `json:"no_face" validate:"oneof=capped closed warn"`
}

func configOf(cfg vigil.MonitorConfig) sessionConfig {
	return sessionConfig{
		EAR:     cfg.EAR,
		Early:   cfg.Early,
		Confirm: cfg.Confirm,
		MinEyes: cfg.MinEyes,
		NoFace:  cfg.Policy.String(),
	}
}

func (sc sessionConfig) monitor() (vigil.MonitorConfig, error) {
	policy, err := vigil.ParseNoFacePolicy(sc.NoFace)
	if err != nil {
		return vigil.MonitorConfig{}, err
	}
	return vigil.MonitorConfig{
		Thresholds: vigil.Thresholds{
			EAR:     sc.EAR,
			Early:   sc.Early,
			Confirm: sc.Confirm,
		},
		MinEyes: sc.MinEyes,
		Policy:  policy,
	}, nil
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"sessions": s.sessions.len(),
		"detector": s.scanner != nil,
	})
}

// classifyColors returns the ranked color table of the uploaded image.
func (s *Server) classifyColors(c *fiber.Ctx) error {
	stride := c.QueryInt("stride", s.cfg.Stride)
	if stride < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "stride must be a positive number")
	}
	mode, err := vigil.ParseMode(c.Query("mode", s.cfg.Mode))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	img, err := decodeUpload(c, "image")
	if err != nil {
		return err
	}

	cl := &vigil.Classifier{
		Palette: s.palette,
		Stride:  stride,
		Mode:    mode,
	}
	hist := cl.Classify(img)

	return c.JSON(fiber.Map{
		"colors":  hist.Ranked(),
		"sampled": hist.Sampled,
		"matched": hist.Matched,
	})
}

// detectEyes runs the detection on a single frame, without any debouncing.
// With annotate set the annotated frame is returned as JPEG.
func (s *Server) detectEyes(c *fiber.Ctx) error {
	if s.scanner == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "face detection is not available")
	}

	img, err := decodeUpload(c, "image")
	if err != nil {
		return err
	}

	faces, reading := s.scanner.Scan(img)
	if faces == nil {
		faces = []vigil.Face{}
	}
	est := vigil.NewEstimator(s.cfg.EAR, s.cfg.MinEyes).Estimate(reading)

	if c.QueryBool("annotate") {
		var status vigil.Status
		switch est.State {
		case vigil.NoFace:
			status = vigil.StatusNoFace
		case vigil.EyesClosed:
			status = vigil.StatusClosing
		default:
			status = vigil.StatusAlert
		}

		var buf bytes.Buffer
		if err := vigil.EncodeImage(&buf, vigil.Annotate(img, faces, status, s.tint), ".jpg"); err != nil {
			return fmt.Errorf("could not encode the annotated frame: %w", err)
		}
		c.Set(fiber.HeaderContentType, "image/jpeg")
		return c.Send(buf.Bytes())
	}

	return c.JSON(fiber.Map{
		"faces":   faces,
		"reading": reading,
		"state":   est.State,
	})
}

// createSession opens a monitoring session. The JSON body may override
// any of the configured thresholds.
func (s *Server) createSession(c *fiber.Ctx) error {
	defaults, err := s.cfg.Monitor()
	if err != nil {
		return err
	}
	req := configOf(defaults)

	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid session config: "+err.Error())
		}
	}
	if err := s.validator.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	cfg, err := req.monitor()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	sess := &session{
		limiter: rate.NewLimiter(rate.Limit(s.cfg.FrameRate), s.cfg.FrameBurst),
		clips:   make(map[vigil.Alert]string),
		created: time.Now(),
	}
	var notifier vigil.Notifier
	if s.cfg.PlaySounds {
		sess.sound = vigil.NewSoundNotifier(s.cfg.Player, s.cfg.Clips(), s.log)
		notifier = sess.sound
	}

	if sess.monitor, err = vigil.NewMonitor(cfg, notifier); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	s.sessions.add(sess)

	s.log.WithField("session", sess.monitor.ID).Info("session created")
	return c.Status(fiber.StatusCreated).JSON(sess.info())
}

func (s *Server) getSession(c *fiber.Ctx) error {
	sess, err := s.sessions.get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sess.info())
}

// deleteSession closes the session and returns its final statistics.
func (s *Server) deleteSession(c *fiber.Ctx) error {
	sess, err := s.sessions.remove(c.Params("id"))
	if err != nil {
		return err
	}
	info := sess.info()
	sess.close(s.log)

	s.log.WithField("session", info.ID).Info("session closed")
	return c.JSON(info)
}

// uploadClip stores the uploaded audio clip of an alert level for the session.
func (s *Server) uploadClip(c *fiber.Ctx) error {
	sess, err := s.sessions.get(c.Params("id"))
	if err != nil {
		return err
	}

	lvl, err := vigil.ParseAlert(c.Params("level"))
	if err != nil || lvl == vigil.Normal {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid alert level %q", c.Params("level")))
	}

	fh, err := c.FormFile("clip")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing clip file")
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("could not open the uploaded clip: %w", err)
	}
	defer f.Close()

	path, err := vigil.SaveClip(f, filepath.Ext(fh.Filename))
	if err != nil {
		return fiber.NewError(fiber.StatusUnsupportedMediaType, err.Error())
	}

	if prev := sess.setClip(lvl, path); prev != "" {
		if err := vigil.RemoveClip(prev); err != nil {
			s.log.WithField("clip", prev).Warnf("could not remove the replaced clip: %v", err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"level": lvl,
		"size":  fh.Size,
	})
}

// decodeUpload decodes the image sent in the multipart field.
func decodeUpload(c *fiber.Ctx, field string) (*image.NRGBA, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "missing "+field+" file")
	}
	return decodeFile(fh)
}

func decodeFile(fh *multipart.FileHeader) (*image.NRGBA, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("could not open the uploaded image: %w", err)
	}
	defer f.Close()

	img, err := vigil.DecodeImage(f)
	if err != nil {
		if errors.Is(err, vigil.ErrUnsupportedFormat) {
			return nil, fiber.NewError(fiber.StatusUnsupportedMediaType, err.Error())
		}
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return img, nil
}
