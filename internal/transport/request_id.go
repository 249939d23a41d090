package transport

import (
	"strings"

	"github.com/clicknps/webhook-engine/internal/observability"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"

	maxRequestIDLength = 128
)

// RequestID propagates the caller's X-Request-ID, or assigns a new one, into
// the response header and the request's user context.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := strings.TrimSpace(c.Get(HeaderRequestID))
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		c.Set(HeaderRequestID, requestID)
		c.SetUserContext(observability.WithRequestID(c.UserContext(), requestID))

		return c.Next()
	}
}
