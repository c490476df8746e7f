package service

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
)

// traceID — X-Request-ID текущего запроса для связки аудита с access-логом
func traceID(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}
