package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger — общий интерфейс логирования сервиса.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(err error, format string, args ...any)
	With(kv ...any) Logger
}

// SlogLogger реализует Logger поверх log/slog.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger создаёт JSON-логгер в stdout, уровень берётся из LOG_LEVEL.
func NewSlogLogger() *SlogLogger {
	return NewSlogLoggerWithWriter(os.Stdout, parseLevel(os.Getenv("LOG_LEVEL")))
}

func NewSlogLoggerWithWriter(w io.Writer, level slog.Level) *SlogLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &SlogLogger{l: slog.New(handler)}
}

func (s *SlogLogger) Debugf(format string, args ...any) {
	s.log(slog.LevelDebug, nil, format, args...)
}

func (s *SlogLogger) Infof(format string, args ...any) {
	s.log(slog.LevelInfo, nil, format, args...)
}

func (s *SlogLogger) Warnf(format string, args ...any) {
	s.log(slog.LevelWarn, nil, format, args...)
}

// Errorf логирует ошибку; err попадает в отдельное поле "error".
func (s *SlogLogger) Errorf(err error, format string, args ...any) {
	s.log(slog.LevelError, err, format, args...)
}

// With возвращает логгер с дополнительными полями.
func (s *SlogLogger) With(kv ...any) Logger {
	return &SlogLogger{l: s.l.With(kv...)}
}

func (s *SlogLogger) log(level slog.Level, err error, format string, args ...any) {
	ctx := context.Background()
	if !s.l.Enabled(ctx, level) {
		return
	}

	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	if err != nil {
		s.l.Log(ctx, level, msg, slog.String("error", err.Error()))
		return
	}
	s.l.Log(ctx, level, msg)
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Nop — логгер, который ничего не пишет. Используется в тестах.
type Nop struct{}

func (Nop) Debugf(string, ...any)        {}
func (Nop) Infof(string, ...any)         {}
func (Nop) Warnf(string, ...any)         {}
func (Nop) Errorf(error, string, ...any) {}
func (n Nop) With(...any) Logger         { return n }
