package gologger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Provider hands out glog loggers backed by one slog handler. Each name is
// attached as the "logger" attribute.
type Provider struct {
	handler slog.Handler
	exit    func(int)
}

// NewJSONProvider writes JSON lines to w at the given level.
func NewJSONProvider(w io.Writer, level string) *Provider {
	if w == nil {
		w = os.Stderr
	}
	return NewProvider(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

func NewProvider(handler slog.Handler) *Provider {
	if handler == nil {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	return &Provider{handler: handler, exit: os.Exit}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	if p == nil || p.handler == nil {
		return glog.Nop()
	}
	logger := slog.New(p.handler)
	if name = strings.TrimSpace(name); name != "" {
		logger = logger.With("logger", name)
	}
	return &slogLogger{logger: logger, ctx: context.Background(), exit: p.exit}
}

type slogLogger struct {
	logger *slog.Logger
	ctx    context.Context
	exit   func(int)
}

func (l *slogLogger) Trace(msg string, args ...any) { l.logger.DebugContext(l.ctx, msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.logger.DebugContext(l.ctx, msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.InfoContext(l.ctx, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.WarnContext(l.ctx, msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.ErrorContext(l.ctx, msg, args...) }

func (l *slogLogger) Fatal(msg string, args ...any) {
	l.logger.ErrorContext(l.ctx, msg, args...)
	if l.exit != nil {
		l.exit(1)
	}
}

func (l *slogLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &slogLogger{logger: l.logger, ctx: ctx, exit: l.exit}
}

var (
	_ glog.LoggerProvider = (*Provider)(nil)
	_ glog.Logger         = (*slogLogger)(nil)
)
