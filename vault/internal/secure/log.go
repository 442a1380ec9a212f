package secure

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/telhawk-systems/cardvault/common/logging"
	"github.com/telhawk-systems/cardvault/common/middleware"
	"github.com/telhawk-systems/cardvault/vault/internal/models"
	"github.com/telhawk-systems/cardvault/vault/internal/sanitize"
)

// LogLevel selects where a SecureLog line is routed.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	// LevelSecurity logs at error level and also writes an audit entry.
	LevelSecurity LogLevel = "security"
)

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError, LevelSecurity:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// SecureLog writes a neutralised log line. It never panics and never returns
// an error: handler failures fall back to a plain line on the fallback writer.
func (e *Engine) SecureLog(ctx context.Context, level LogLevel, message string, details map[string]any) {
	msg := sanitize.LogText(message, sanitize.MaxMessageRunes)
	clean := sanitize.Details(details)

	e.emit(ctx, level, msg, clean)

	if level == LevelSecurity && e.audit != nil {
		auditDetails := make(map[string]any, len(clean)+1)
		for k, v := range clean {
			auditDetails[k] = v
		}
		auditDetails["message"] = msg
		e.audit.Log(ctx, "security_event", models.SeverityCritical, auditDetails)
	}
}

func (e *Engine) emit(ctx context.Context, level LogLevel, msg string, details map[string]string) {
	lvl := level.slogLevel()
	handler := e.logger.Handler()
	if !handler.Enabled(ctx, lvl) {
		return
	}

	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rec := slog.NewRecord(e.now(), lvl, msg, 0)
	if level == LevelSecurity {
		rec.AddAttrs(slog.Bool("security", true))
	}
	if rid := middleware.GetRequestID(ctx); rid != "" {
		rec.AddAttrs(slog.String(logging.FieldRequestID, rid))
	}
	for _, k := range keys {
		rec.AddAttrs(slog.String(k, details[k]))
	}

	if err := safeHandle(ctx, handler, rec); err != nil {
		e.writeFallback(level, msg, err)
	}
}

func safeHandle(ctx context.Context, h slog.Handler, rec slog.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("log handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, rec)
}

func (e *Engine) writeFallback(level LogLevel, msg string, cause error) {
	defer func() { _ = recover() }()

	e.fallbackMu.Lock()
	defer e.fallbackMu.Unlock()
	if e.fallback == nil {
		return
	}
	fmt.Fprintf(e.fallback, "%s [%s] %s (logger error: %s)\n",
		e.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"), strings.ToUpper(string(level)), msg,
		sanitize.LogText(cause.Error(), sanitize.MaxDetailRunes))
}
