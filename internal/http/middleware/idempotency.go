package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/triage-backend/internal/http/response"
	"github.com/yungbote/triage-backend/internal/observability"
	"github.com/yungbote/triage-backend/internal/platform/apierr"
	"github.com/yungbote/triage-backend/internal/platform/ctxutil"
	"github.com/yungbote/triage-backend/internal/platform/idempotency"
	"github.com/yungbote/triage-backend/internal/platform/logger"
)

var errDuplicateRequest = errors.New("duplicate request")

// Idempotency rejects a POST whose idempotency key was already claimed with
// 409. Requests without a key pass through. If the store errors the request
// is let through rather than failing closed. A request that ends in a 4xx or
// 5xx gives its key back so the client can retry it.
func Idempotency(store idempotency.Store, log *logger.Logger, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		key := ""
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			key = td.IdempotencyKey
		}
		if key == "" {
			key = idempotencyKey(c)
		}
		if key == "" {
			c.Next()
			return
		}

		claimKey := c.FullPath() + "|" + key
		ok, err := store.Claim(c.Request.Context(), claimKey)
		switch {
		case err != nil:
			m.IncIdempotency("error")
			if log != nil {
				log.Warn("idempotency check failed (continuing)", "error", err)
			}
		case !ok:
			m.IncIdempotency("duplicate")
			response.RespondAPIError(c, apierr.Conflict("duplicate_request", errDuplicateRequest).WithParam("Idempotency-Key"))
			return
		default:
			m.IncIdempotency("accepted")
			c.Next()
			if c.Writer.Status() >= http.StatusBadRequest {
				if err := store.Release(context.WithoutCancel(c.Request.Context()), claimKey); err != nil && log != nil {
					log.Warn("idempotency release failed", "status", c.Writer.Status(), "error", err)
				}
				m.IncIdempotency("released")
			}
			return
		}
		c.Next()
	}
}
