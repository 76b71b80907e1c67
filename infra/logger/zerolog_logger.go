package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig enables rotating file output next to stdout.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	outMu  sync.RWMutex
	output io.Writer = os.Stdout
	level            = zerolog.InfoLevel
	rotate *lumberjack.Logger
)

// Setup configures the level and destination shared by every logger created
// afterwards. An empty fc.Path keeps stdout only.
func Setup(lvl string, fc FileConfig) error {
	parsed := zerolog.InfoLevel
	if lvl != "" {
		var err error
		if parsed, err = zerolog.ParseLevel(strings.ToLower(lvl)); err != nil {
			return err
		}
	}
	outMu.Lock()
	defer outMu.Unlock()
	level = parsed
	if rotate != nil {
		_ = rotate.Close()
		rotate = nil
	}
	output = os.Stdout
	if fc.Path != "" {
		rotate = &lumberjack.Logger{
			Filename:   fc.Path,
			MaxSize:    fc.MaxSizeMB,
			MaxBackups: fc.MaxBackups,
			MaxAge:     fc.MaxAgeDays,
			Compress:   fc.Compress,
		}
		output = io.MultiWriter(os.Stdout, rotate)
	}
	return nil
}

// Close flushes and closes the rotating file, if any.
func Close() error {
	outMu.Lock()
	defer outMu.Unlock()
	if rotate == nil {
		return nil
	}
	err := rotate.Close()
	rotate = nil
	output = os.Stdout
	return err
}

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger creates a ZerologLogger using the APP_ENV environment variable
// to determine the output format. All logs include the provided component field.
func NewZerologLogger(component string) Logger {
	outMu.RLock()
	out, lvl := output, level
	outMu.RUnlock()
	return newZerolog(out, lvl, component)
}

func newZerolog(out io.Writer, lvl zerolog.Level, component string) *ZerologLogger {
	env := strings.ToLower(os.Getenv("APP_ENV"))
	if env == "dev" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	z := zerolog.New(out).Level(lvl).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Infow(msg string, fields map[string]any) {
	ev := l.log.Info()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
