// Package ratelimit guards the control plane against connect floods and
// frame floods using an in-memory or Redis-backed token bucket store.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/castwire/signal/internal/v1/config"
	"github.com/castwire/signal/internal/v1/logging"
	"github.com/castwire/signal/internal/v1/metrics"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// frameKindsLimited is the set of inbound frame kinds a malicious client
// would spam: room creation, room joins, and chat.
var frameKindsLimited = map[string]bool{
	"create-room":  true,
	"join-room":    true,
	"chat-message": true,
}

// Limiter enforces a per-IP WebSocket-connect limit and a per-connection
// frame-rate limit.
type Limiter struct {
	wsConnectIP *limiter.Limiter
	frameUser   *limiter.Limiter
	cb          *gobreaker.CircuitBreaker
}

// New builds a Limiter. When cfg.RateLimitEnabled and a non-nil Redis
// client are given, the counters live in Redis behind a circuit breaker so
// several instances of this service share one abuse-rate view; otherwise
// they live in local memory.
func New(cfg *config.Config, redisClient *redis.Client) (*Limiter, error) {
	wsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWSConnectIP)
	if err != nil {
		return nil, fmt.Errorf("invalid ws connect rate: %w", err)
	}
	frameRate, err := limiter.NewRateFromFormatted(cfg.RateLimitFrameUser)
	if err != nil {
		return nil, fmt.Errorf("invalid frame rate: %w", err)
	}

	var store limiter.Store
	var cb *gobreaker.CircuitBreaker
	if cfg.RateLimitEnabled && redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "castwire:ratelimit:"})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
		}
		store = s
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ratelimit-redis",
			MaxRequests: 5,
			Interval:    time.Minute,
			Timeout:     15 * time.Second,
			OnStateChange: func(name string, from, to gobreaker.State) {
				var v float64
				switch to {
				case gobreaker.StateClosed:
					v = 0
				case gobreaker.StateOpen:
					v = 1
				case gobreaker.StateHalfOpen:
					v = 2
				}
				metrics.RateLimitCircuitState.Set(v)
			},
		})
		logging.Info(context.Background(), "rate limiter using redis store")
	} else {
		store = memory.NewStore()
		logging.Info(context.Background(), "rate limiter using memory store")
	}

	return &Limiter{
		wsConnectIP: limiter.New(store, wsRate),
		frameUser:   limiter.New(store, frameRate),
		cb:          cb,
	}, nil
}

func (l *Limiter) get(ctx context.Context, lim *limiter.Limiter, key string) (limiter.Context, error) {
	if l.cb == nil {
		return lim.Get(ctx, key)
	}
	res, err := l.cb.Execute(func() (any, error) {
		return lim.Get(ctx, key)
	})
	if err != nil {
		return limiter.Context{}, err
	}
	return res.(limiter.Context), nil
}

// AllowWSConnect reports whether a new WebSocket connection from ip should
// be accepted. A failed or circuit-open store fails open: availability of
// the signaling path matters more than the abuse counter.
func (l *Limiter) AllowWSConnect(ctx context.Context, ip string) bool {
	lc, err := l.get(ctx, l.wsConnectIP, ip)
	if err != nil {
		logging.Warn(ctx, "rate limiter store unavailable, failing open", zap.Error(err), zap.String("limiter", "ws_connect"))
		return true
	}
	if lc.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ws_connect").Inc()
		return false
	}
	return true
}

// AllowFrame reports whether an inbound frame of the given type from
// clientID should be processed. Frame kinds outside frameKindsLimited are
// always allowed.
func (l *Limiter) AllowFrame(ctx context.Context, clientID, frameType string) bool {
	if !frameKindsLimited[frameType] {
		return true
	}
	lc, err := l.get(ctx, l.frameUser, clientID)
	if err != nil {
		logging.Warn(ctx, "rate limiter store unavailable, failing open", zap.Error(err), zap.String("limiter", "frame"))
		return true
	}
	if lc.Reached {
		metrics.RateLimitExceeded.WithLabelValues("frame").Inc()
		return false
	}
	return true
}

// ConnectMiddleware rejects the WebSocket upgrade request itself once the
// caller's IP has exceeded the connect rate.
func (l *Limiter) ConnectMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.AllowWSConnect(c.Request.Context(), c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
			return
		}
		c.Next()
	}
}
