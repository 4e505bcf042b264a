package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logf is the package-level diagnostic logger. It defaults to an info-level
// zerolog event but may be replaced by SetLogger. Tests or production code
// can redirect or mute it.
var Logf func(format string, v ...interface{}) = defaultLogf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

func defaultLogf(format string, v ...interface{}) {
	l := Logger()
	l.Info().Msg(strings.TrimRight(fmt.Sprintf(format, v...), "\n"))
}

// Config selects the structured logger's level and output format.
type Config struct {
	Level  string    // trace, debug, info, warn, error, disabled (default info)
	Format string    // json or console (default console)
	Output io.Writer // default os.Stderr
}

var (
	mu  sync.RWMutex
	log = newLogger(Config{})
)

// Init reconfigures the structured logger. Safe to call more than once.
func Init(cfg Config) {
	l := newLogger(cfg)
	mu.Lock()
	log = l
	mu.Unlock()
}

// Logger returns the structured logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// SetZerolog replaces the structured logger, typically with one writing to
// a test buffer.
func SetZerolog(l zerolog.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
}

func newLogger(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
