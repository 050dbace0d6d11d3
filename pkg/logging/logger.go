// Package logging provides structured logging for go-flight. It wraps the
// standard slog package with correlation IDs, component scoping and attribute
// redaction.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Environment variables read by NewLogger.
const (
	// LevelEnvVar selects the minimum level: DEBUG, INFO, WARN or ERROR.
	LevelEnvVar = "FLIGHT_LOG_LEVEL"
	// FormatEnvVar selects "json" (default) or "text" output.
	FormatEnvVar = "FLIGHT_LOG_FORMAT"
)

// Logger wraps slog.Logger with context-aware helpers.
type Logger struct {
	*slog.Logger
}

// Options configures a logger. The zero value is JSON at INFO.
type Options struct {
	Level slog.Level
	Text  bool
}

// OptionsFromEnv reads FLIGHT_LOG_LEVEL and FLIGHT_LOG_FORMAT.
func OptionsFromEnv() Options {
	format := strings.TrimSpace(os.Getenv(FormatEnvVar))
	return Options{
		Level: ParseLevel(os.Getenv(LevelEnvVar)),
		Text:  strings.EqualFold(format, "text"),
	}
}

// NewLogger logs to stdout with options from the environment.
func NewLogger() *Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter logs to w with options from the environment.
func NewLoggerWithWriter(w io.Writer) *Logger {
	return NewLoggerWithOptions(w, OptionsFromEnv())
}

// NewLoggerWithOptions logs to w. Credential-like attributes are redacted and
// the context's correlation ID is attached to every record.
func NewLoggerWithOptions(w io.Writer, opts Options) *Logger {
	ho := &slog.HandlerOptions{Level: opts.Level, ReplaceAttr: sanitizeAttributes}
	var inner slog.Handler = slog.NewJSONHandler(w, ho)
	if opts.Text {
		inner = slog.NewTextHandler(w, ho)
	}
	return &Logger{slog.New(correlationHandler{inner})}
}

// correlationHandler adds correlation_id from the record's context.
type correlationHandler struct {
	slog.Handler
}

func (h correlationHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := GetCorrelationID(ctx); id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h correlationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return correlationHandler{h.Handler.WithAttrs(attrs)}
}

func (h correlationHandler) WithGroup(name string) slog.Handler {
	return correlationHandler{h.Handler.WithGroup(name)}
}

// Component returns a child logger tagged with the subsystem name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{l.Logger.With("component", name)}
}

// Actor returns a child logger tagged with an actor's id and name.
func (l *Logger) Actor(id uint64, name string) *Logger {
	return &Logger{l.Logger.With("actor_id", id, "actor", name)}
}

// Session returns a child logger tagged with a remote pilot session.
func (l *Logger) Session(sessionID string) *Logger {
	return &Logger{l.Logger.With("session_id", sessionID)}
}

// Debug, Info and Warn log msg with args at their level. ctx supplies the
// correlation ID.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, slog.LevelDebug, msg, args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, slog.LevelInfo, msg, args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs msg at ERROR with err under the "error" key. A nil err is omitted.
func (l *Logger) Error(ctx context.Context, msg string, err error, args ...any) {
	if err != nil {
		args = append([]any{slog.String("error", err.Error())}, args...)
	}
	l.Log(ctx, slog.LevelError, msg, args...)
}

type correlationIDKey struct{}

// WithCorrelationID stores a correlation ID on the context, generating one if
// correlationID is empty.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if correlationID == "" {
		correlationID = GenerateCorrelationID()
	}
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

// GetCorrelationID returns the context's correlation ID or "".
func GetCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// GenerateCorrelationID returns a new random UUID string.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// ParseLevel maps a level name to a slog level. Unknown names map to INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Keys containing any of these are redacted. Recorder DSNs can carry credentials.
var sensitiveKeys = []string{
	"password", "passwd", "token", "secret",
	"authorization", "api_key", "apikey", "dsn", "cookie",
}

// sanitizeAttributes masks attributes whose key looks like a credential.
func sanitizeAttributes(_ []string, a slog.Attr) slog.Attr {
	lower := strings.ToLower(a.Key)
	for _, k := range sensitiveKeys {
		if strings.Contains(lower, k) {
			a.Value = slog.StringValue("[REDACTED]")
			break
		}
	}
	return a
}

// WrapError prefixes err with a message formatted from format and args.
// A nil err stays nil.
func WrapError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
