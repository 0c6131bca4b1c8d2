package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderXRequestID = "X-Request-ID"
	HeaderXActorID   = "X-Actor-ID"

	ContextRequestID = "request_id"
	ContextActorID   = "actor_id"
)

// RequestID assigns each request a correlation id, honoring the one the
// caller supplied. The id is propagated into every outbox event produced
// by the request so downstream consumers can trace the causing call.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderXRequestID)
		if rid == "" {
			rid = uuid.New().String()
		}
		c.Set(ContextRequestID, rid)
		c.Header(HeaderXRequestID, rid)

		if actor := c.GetHeader(HeaderXActorID); actor != "" {
			if id, err := uuid.Parse(actor); err == nil {
				c.Set(ContextActorID, id)
			}
		}

		c.Next()
	}
}

// CorrelationID returns the request's correlation id, minting one if the
// middleware did not run.
func CorrelationID(c *gin.Context) string {
	if rid := c.GetString(ContextRequestID); rid != "" {
		return rid
	}
	return uuid.New().String()
}

// ActorID returns the authenticated actor, when one was supplied.
func ActorID(c *gin.Context) *uuid.UUID {
	if v, ok := c.Get(ContextActorID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return &id
		}
	}
	return nil
}
