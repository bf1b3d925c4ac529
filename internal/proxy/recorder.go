package proxy

import (
	"context"
	"log/slog"
	"time"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
	"github.com/tjfontaine/threadlog-gateway/internal/server"
)

// record appends rec to the store. Failures are logged and never reach the
// client.
func (h *Handler) record(ctx context.Context, rec *domain.LogRecord) {
	if h.store == nil {
		return
	}
	rec.Timestamp = domain.Timestamp(time.Now())

	// Decouple persistence from the request lifecycle so a client disconnect
	// does not drop the record; still enforce a short timeout.
	persistCtx, cancel := persistenceContext(ctx, h.persistTimeout)
	defer cancel()

	if err := h.store.AppendLog(persistCtx, rec); err != nil {
		h.logger.Error("failed to record log",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("kind", string(rec.Kind)),
			slog.String("path", rec.Path),
			slog.String("error", err.Error()),
		)
	}
}

// persistenceContext detaches from ctx's cancellation but keeps the request id.
func persistenceContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	base := context.Background()
	if reqID := server.GetRequestID(ctx); reqID != "" {
		base = context.WithValue(base, server.RequestIDKey, reqID)
	}

	if timeout <= 0 {
		return context.WithCancel(base)
	}

	return context.WithTimeout(base, timeout)
}
