// Package log sets up the structured logger shared by the vigil binaries.
package log

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	logger = logrus.StandardLogger()
)

// Fields is the set of structured fields attached to a log entry.
type Fields = logrus.Fields

// Options configures the logger.
type Options struct {
	Level    string
	NoColors bool
	// File enables a rotating log file next to the stderr output.
	File string
	// Output replaces stderr, mostly for tests.
	Output io.Writer
}

// New creates a logger with the nested formatter and an optional rotating log file.
func New(opts Options) (*logrus.Logger, error) {
	l := logrus.New()

	lvl := logrus.InfoLevel
	if opts.Level != "" {
		var err error
		if lvl, err = logrus.ParseLevel(opts.Level); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}
	l.SetLevel(lvl)

	l.SetFormatter(&formatter.Formatter{
		NoColors:        opts.NoColors,
		TimestampFormat: "02 Jan 06 - 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
		},
	})

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	writers := []io.Writer{out}

	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
		})
	}

	l.SetOutput(io.MultiWriter(writers...))
	l.SetReportCaller(true)

	return l, nil
}

// Init creates a logger and installs it as the package level logger.
func Init(opts Options) (*logrus.Logger, error) {
	l, err := New(opts)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	logger = l

	return l, nil
}

// Logger returns the package level logger.
func Logger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func entry(fields Fields) *logrus.Entry {
	if fields == nil {
		fields = Fields{}
	}
	return Logger().WithFields(fields)
}

// Debug logs the message at the debug level with the given fields.
func Debug(fields Fields, msg string) {
	entry(fields).Debug(msg)
}

// Info logs the message at the info level with the given fields.
func Info(fields Fields, msg string) {
	entry(fields).Info(msg)
}

// Warn logs the message at the warning level with the given fields.
func Warn(fields Fields, msg string) {
	entry(fields).Warn(msg)
}

// Error logs the message at the error level with the given fields.
func Error(fields Fields, msg string) {
	entry(fields).Error(msg)
}
