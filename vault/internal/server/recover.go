package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/telhawk-systems/cardvault/common/httputil"
	"github.com/telhawk-systems/cardvault/common/logging"
)

// FaultReporter receives recovered panics.
type FaultReporter interface {
	ReportPanic(ctx context.Context, v any) error
}

// Recover turns handler panics into 500 responses and error faults.
func Recover(faults FaultReporter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				slog.ErrorContext(r.Context(), "handler panic",
					slog.Any("panic", v),
					slog.String("path", r.URL.Path))
				if faults != nil {
					if err := faults.ReportPanic(r.Context(), v); err != nil {
						slog.WarnContext(r.Context(), "failed to report panic", logging.Error(err))
					}
				}
				httputil.WriteError(w, http.StatusInternalServerError, "operation failed")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
