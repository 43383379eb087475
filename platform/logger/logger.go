// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// ChatIDKey is the context key for the telegram chat id
	ChatIDKey contextKey = "chat_id"
	// OperatorKey is the context key for the operator display name
	OperatorKey contextKey = "operator"
	// UpdateIDKey is the context key for the telegram update id
	UpdateIDKey contextKey = "update_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger writing to w. Tests pass io.Discard.
func NewWithWriter(env string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewWithWriter("production", io.Discard)
}

// WithContext returns a logger with context values extracted.
// Supports chat_id, operator and update_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if chatID, ok := ctx.Value(ChatIDKey).(int64); ok && chatID != 0 {
		newLogger = newLogger.WithChatID(chatID)
	}

	if operator, ok := ctx.Value(OperatorKey).(string); ok && operator != "" {
		newLogger = newLogger.WithOperator(operator)
	}

	if updateID, ok := ctx.Value(UpdateIDKey).(int64); ok && updateID != 0 {
		newLogger = &Logger{
			Logger: newLogger.With(slog.Int64("update_id", updateID)),
		}
	}

	return newLogger
}

// WithChatID returns a logger with chat ID
func (l *Logger) WithChatID(chatID int64) *Logger {
	return &Logger{
		Logger: l.With(slog.Int64("chat_id", chatID)),
	}
}

// WithOperator returns a logger with the operator name
func (l *Logger) WithOperator(name string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("operator", name)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// RateLimitExceeded logs rate limit violations
func (l *Logger) RateLimitExceeded(ip, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("ip", ip),
		slog.String("path", path),
	)
}

// SyncOutcome logs the result of one ledger write
func (l *Logger) SyncOutcome(ledger, taxID, action string, err error) {
	if err == nil {
		l.Info("ledger_sync",
			slog.String("ledger", ledger),
			slog.String("tax_id", taxID),
			slog.String("action", action),
		)
		return
	}
	l.Error("ledger_sync",
		slog.String("ledger", ledger),
		slog.String("tax_id", taxID),
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
}

// EnrichmentDegraded logs a failed or partial enrichment sub-fetch
func (l *Logger) EnrichmentDegraded(taxID, part string, err error) {
	attrs := []any{
		slog.String("tax_id", taxID),
		slog.String("part", part),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.Warn("enrichment_degraded", attrs...)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}
