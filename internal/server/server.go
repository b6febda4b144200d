// Package server exposes the eye state monitoring and the color classification over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/esimov/vigil"
	"github.com/esimov/vigil/internal/config"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// shutdownTimeout bounds the graceful shutdown of the listener.
const shutdownTimeout = 5 * time.Second

// Scanner finds the faces in a frame and summarizes them into an eye reading.
type Scanner interface {
	Scan(image.Image) ([]vigil.Face, vigil.EyeReading)
}

// Option configures the Server.
type Option func(*Server) error

// Server is the HTTP and WebSocket front end of the monitoring sessions.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	log       *logrus.Logger
	validator *validator.Validate
	scanner   Scanner
	palette   vigil.Palette
	tint      vigil.Tint
	sessions  *sessions
}

// New creates the server. The configuration and the logger are required.
func New(options ...Option) (*Server, error) {
	s := &Server{
		validator: validator.New(),
	}
	s.cfg = config.Default()

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if s.log == nil {
		return nil, errors.New("logger is required")
	}
	if s.palette == nil {
		s.palette = vigil.DefaultPalette()
	}
	tint, err := s.cfg.Tint()
	if err != nil {
		return nil, fmt.Errorf("invalid tint: %w", err)
	}
	s.tint = tint
	s.sessions = newSessions()

	s.app = fiber.New(fiber.Config{
		AppName:               "vigil",
		BodyLimit:             s.cfg.MaxUpload * 1024 * 1024,
		StrictRouting:         true,
		CaseSensitive:         true,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
		JSONEncoder:           jsoniter.Marshal,
		JSONDecoder:           jsoniter.Unmarshal,
	})
	s.routes()

	return s, nil
}

// WithConfig sets the service settings.
func WithConfig(cfg config.Config) Option {
	return func(s *Server) error {
		s.cfg = cfg
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

// WithScanner enables the frame based eye detection. Without it only
// the face mesh input is accepted.
func WithScanner(sc Scanner) Option {
	return func(s *Server) error {
		s.scanner = sc
		return nil
	}
}

// WithPalette replaces the default color palette.
func WithPalette(p vigil.Palette) Option {
	return func(s *Server) error {
		if len(p) == 0 {
			return errors.New("empty palette")
		}
		s.palette = p
		return nil
	}
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured address until the context is cancelled,
// then shuts the listener down and closes the remaining sessions.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.app.Listen(s.cfg.Addr)
	}()
	s.log.WithField("addr", s.cfg.Addr).Info("server started")

	select {
	case err := <-errc:
		s.sessions.closeAll(s.log)
		return err
	case <-ctx.Done():
	}

	err := s.app.ShutdownWithTimeout(shutdownTimeout)
	s.sessions.closeAll(s.log)
	if err != nil {
		return fmt.Errorf("error shutting down the server: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) routes() {
	s.app.Use(requestLogger())

	s.app.Get("/healthz", s.health)

	api := s.app.Group("/api/v1")
	api.Post("/colors", s.classifyColors)
	api.Post("/eyes", s.detectEyes)

	api.Post("/sessions", s.createSession)
	api.Get("/sessions/:id", s.getSession)
	api.Delete("/sessions/:id", s.deleteSession)
	api.Post("/sessions/:id/sounds/:level", s.uploadClip)
	api.Get("/sessions/:id/ws", s.upgrade, s.stream())
}
