// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// zerolog's global floor defaults to debug; verbosity is enforced here
// instead, so let trace events through.
func init() { zerolog.SetGlobalLevel(zerolog.TraceLevel) }

type logField struct {
	key string
	val interface{}
}

// Logger writes levelled messages to stderr through a zerolog console
// writer, with optional timestamps and per-component fields.
type Logger struct {
	level      LogLevel
	output     io.Writer
	timestamps bool // if true, prepend a wall-clock timestamp
	fields     []logField
	zl         zerolog.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// Nop returns a Logger that discards everything, errors included.
func Nop() *Logger {
	l := &Logger{level: LogQuiet, output: io.Discard}
	l.zl = zerolog.Nop()
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.timestamps = on
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that tags every line with key=val.
func (l *Logger) With(key string, val interface{}) *Logger {
	child := &Logger{
		level:      l.level,
		output:     l.output,
		timestamps: l.timestamps,
		fields:     append(append([]logField(nil), l.fields...), logField{key, val}),
	}
	if l.output == io.Discard {
		child.zl = zerolog.Nop()
		return child
	}
	child.rebuild()
	return child
}

// Info prints when verbosity ≥ 1.  Tagged INF.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.zl.Info().Msg(fmt.Sprintf(format, args...))
	}
}

// Warn prints when verbosity ≥ 1.  Tagged WRN.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.zl.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// Verbose prints when verbosity ≥ 2.  Tagged DBG.
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.zl.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

// Debug prints when verbosity ≥ 3.  Tagged TRC.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.zl.Trace().Msg(fmt.Sprintf(format, args...))
	}
}

// Error always prints regardless of verbosity.  Tagged ERR.
func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) rebuild() {
	cw := zerolog.ConsoleWriter{
		Out:        zerolog.SyncWriter(l.output),
		NoColor:    true,
		TimeFormat: "15:04:05",
	}
	if !l.timestamps {
		cw.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	ctx := zerolog.New(cw).Level(zerolog.TraceLevel).With().Timestamp()
	for _, f := range l.fields {
		ctx = ctx.Interface(f.key, f.val)
	}
	l.zl = ctx.Logger()
}
