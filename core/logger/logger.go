package logger

import (
	"io"
	"log/slog"
	"os"
)

type config struct {
	w      io.Writer
	level  slog.Leveler
	json   bool
	attrs  []slog.Attr
	source bool
}

// Option configures the logger factory.
type Option func(*config)

// WithLevel sets the minimum level the logger emits. Default is Info.
func WithLevel(level slog.Leveler) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithOutput redirects log output. Default is os.Stdout.
// Use io.Discard to silence the logger entirely.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.w = w
		}
	}
}

// WithJSONFormatter switches output to JSON, suitable for log aggregation.
func WithJSONFormatter() Option {
	return func(c *config) {
		c.json = true
	}
}

// WithSource includes the source file and line in every record.
func WithSource() Option {
	return func(c *config) {
		c.source = true
	}
}

// WithAttrs attaches attributes to every record, typically the service name.
func WithAttrs(attrs ...slog.Attr) Option {
	return func(c *config) {
		c.attrs = append(c.attrs, attrs...)
	}
}

// WithDevelopment configures human-readable text output at debug level.
func WithDevelopment(service string) Option {
	return func(c *config) {
		c.json = false
		c.level = slog.LevelDebug
		c.attrs = append(c.attrs, slog.String("service", service))
	}
}

// WithProduction configures JSON output at info level.
func WithProduction(service string) Option {
	return func(c *config) {
		c.json = true
		c.level = slog.LevelInfo
		c.attrs = append(c.attrs, slog.String("service", service))
	}
}

// New builds a *slog.Logger from the given options.
// With no options it returns a text logger at info level writing to stdout.
func New(opts ...Option) *slog.Logger {
	cfg := &config{
		w:     os.Stdout,
		level: slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	hopts := &slog.HandlerOptions{
		Level:     cfg.level,
		AddSource: cfg.source,
	}

	var h slog.Handler
	if cfg.json {
		h = slog.NewJSONHandler(cfg.w, hopts)
	} else {
		h = slog.NewTextHandler(cfg.w, hopts)
	}
	if len(cfg.attrs) > 0 {
		h = h.WithAttrs(cfg.attrs)
	}

	return slog.New(h)
}

// Discard returns a logger that drops every record. Useful as a default
// for components that accept an optional logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
