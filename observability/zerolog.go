package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// LogConfig selects the level and encoding of the zerolog-backed logger.
type LogConfig struct {
	Level  string    `toml:"level" validate:"omitempty,oneof=debug info warn error disabled"`
	Format string    `toml:"format" validate:"omitempty,oneof=json console"`
	Output io.Writer `toml:"-"`
}

// New builds a Logger from cfg. An empty level means info, an empty format
// means JSON, and a nil output means stderr.
func New(cfg LogConfig) (Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
		}
		level = lvl
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	switch cfg.Format {
	case "", "json":
	case "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return NewZerolog(zl), nil
}

// NewZerolog adapts an existing zerolog.Logger.
func NewZerolog(l zerolog.Logger) Logger {
	return zerologLogger{l: l}
}

type zerologLogger struct {
	l zerolog.Logger
}

func (z zerologLogger) Debug(msg string, fields ...Field) { emit(z.l.Debug(), msg, fields) }
func (z zerologLogger) Info(msg string, fields ...Field)  { emit(z.l.Info(), msg, fields) }
func (z zerologLogger) Warn(msg string, fields ...Field)  { emit(z.l.Warn(), msg, fields) }
func (z zerologLogger) Error(msg string, fields ...Field) { emit(z.l.Error(), msg, fields) }

func (z zerologLogger) With(fields ...Field) Logger {
	c := z.l.With()
	for _, f := range fields {
		c = c.Interface(f.Key(), f.Value())
	}
	return zerologLogger{l: c.Logger()}
}

func emit(e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		switch v := f.Value().(type) {
		case string:
			e = e.Str(f.Key(), v)
		case int:
			e = e.Int(f.Key(), v)
		case int64:
			e = e.Int64(f.Key(), v)
		case uint64:
			e = e.Uint64(f.Key(), v)
		case bool:
			e = e.Bool(f.Key(), v)
		case error:
			e = e.AnErr(f.Key(), v)
		default:
			e = e.Interface(f.Key(), v)
		}
	}
	e.Msg(msg)
}
