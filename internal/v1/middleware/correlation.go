// Package middleware contains small net/http middleware shared across the
// HTTP and WebSocket-upgrade surface.
package middleware

import (
	"context"
	"net/http"

	"github.com/castwire/signal/internal/v1/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderXCorrelationID is the header key for the correlation ID.
const HeaderXCorrelationID = "X-Correlation-Id"

// CorrelationID stamps every request with a correlation ID, generating one
// if the caller didn't send one, and injects it into the request context so
// every log line for this request can carry it. Plain net/http so it has no
// dependency on the router in front of it.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderXCorrelationID)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(HeaderXCorrelationID, id)

		ctx := context.WithValue(r.Context(), logging.CorrelationIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Gin adapts CorrelationID for the gin router the rest of this service's
// HTTP surface is built on.
func Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)
	}
}
