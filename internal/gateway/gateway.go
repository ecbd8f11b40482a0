package gateway

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/internal/cache"
	"chat-relay/internal/metrics"
	"chat-relay/internal/relay"
)

// Handler is the orchestrator boundary the gateway drives.
type Handler interface {
	Handle(ctx context.Context, msg relay.Message) []relay.Event
}

// Config holds gateway configuration.
type Config struct {
	AllowedOrigins []string
	// HandleTimeout bounds one full message flow, all backend calls included.
	HandleTimeout time.Duration
	// RateLimit caps messages per session per minute; zero disables it.
	RateLimit int
}

// Gateway terminates client connections and bridges them to the relay.
type Gateway struct {
	logger        *slog.Logger
	metrics       *metrics.Metrics
	handler       Handler
	redis         *cache.Redis
	handleTimeout time.Duration
	rateLimit     int
	origins       []string
}

// New creates a gateway. redis may be nil, which disables rate limiting.
func New(cfg Config, handler Handler, redis *cache.Redis, m *metrics.Metrics, logger *slog.Logger) *Gateway {
	timeout := cfg.HandleTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Gateway{
		logger:        logger.With("component", "gateway"),
		metrics:       m,
		handler:       handler,
		redis:         redis,
		handleTimeout: timeout,
		rateLimit:     cfg.RateLimit,
		origins:       cfg.AllowedOrigins,
	}
}

// overLimit reports whether the session exceeded its message budget for the
// current window. Limiter failures open the gate rather than blocking chat.
func (g *Gateway) overLimit(ctx context.Context, sessionID string) bool {
	if g.rateLimit <= 0 || g.redis == nil {
		return false
	}
	count, err := g.redis.IncrWindow(ctx, "ratelimit:session:"+sessionID, time.Minute)
	if err != nil {
		g.logger.Warn("rate limiter unavailable", "session", sessionID, "error", err)
		return false
	}
	return count > int64(g.rateLimit)
}

func (g *Gateway) countEvent(name string) {
	if g.metrics != nil {
		g.metrics.ChatOutgoingEvents.WithLabelValues(name).Inc()
	}
}

func (g *Gateway) countInbound(transport string) {
	if g.metrics != nil {
		g.metrics.ChatIncomingMessages.WithLabelValues(transport).Inc()
	}
}
