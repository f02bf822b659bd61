package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
)

// Recovery wraps the chain in a panic-safety net so a bug anywhere
// downstream always produces a well-formed error response instead of
// crashing the gateway process. It is the outermost stage (§4.7).
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req Request) (resp Response) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("recovery caught panic",
						"request_id", req.RequestID,
						"method", req.Method,
						"capability", req.CapabilityName,
						"panic", r)
					resp = Response{Err: backend.New(backend.KindInternal,
						fmt.Sprintf("internal error processing %s", req.Method))}
				}
			}()
			return next(ctx, req)
		}
	}
}
