// Package gin mounts the payment handlers on a Gin engine. The handlers
// themselves live in the server package; this package only adapts routing
// and request logging.
package gin

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/storefront/checkout-go/backend"
	"github.com/storefront/checkout-go/logging"
	"github.com/storefront/checkout-go/server"
)

// Register adds the payment, health and metrics routes to engine.
//
// Example usage:
//
//	r := gin.New()
//	r.Use(ginserver.Logger(logger), gin.Recovery())
//	ginserver.Register(r, handlers, registry)
func Register(engine *gin.Engine, h *server.Handlers, gatherer prometheus.Gatherer) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	api := engine.Group(server.APIPrefix)
	api.POST(backend.VerifyPath, gin.WrapF(h.VerifyCryptoPayment))
	api.POST(backend.SessionPath, gin.WrapF(h.CreateCheckoutSession))

	engine.GET("/healthz", gin.WrapF(h.Health))
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// Logger logs one line per request with zap.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// New returns an engine with logging, recovery and all routes registered.
func New(h *server.Handlers, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	logger = logging.OrNop(logger)
	engine := gin.New()
	engine.Use(Logger(logger), gin.Recovery())
	Register(engine, h, gatherer)
	return engine
}
