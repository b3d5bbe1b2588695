package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lpgateway/internal/custody"
	"lpgateway/internal/dex"
	"lpgateway/internal/metrics"
	"lpgateway/internal/service"
)

const requestIDHeader = "X-Request-Id"

// Pipelines is the service surface the routes call.
type Pipelines interface {
	Discover(ctx context.Context, in service.DiscoverInput) (dex.Discovery, error)
	Mint(ctx context.Context, in service.MintInput) (service.MintResult, error)
	Approve(ctx context.Context, in service.ApproveInput) (service.ApproveResult, error)
	ListPositions(ctx context.Context, userID string, chainID uint64) ([]service.PositionView, error)
	WalletFor(ctx context.Context, userID string) (custody.Wallet, error)
}

// Readiness reports whether the policy gate is open.
type Readiness interface {
	Ready() error
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(p Pipelines, ready Readiness, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(logger))

	h := &handlers{p: p, logger: logger}

	r.GET("/healthz", func(c *gin.Context) {
		if err := ready.Ready(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.GET("/pools", h.discover)
		v1.POST("/positions", h.mint)
		v1.GET("/positions", h.listPositions)
		v1.POST("/approvals", h.approve)
		v1.GET("/wallets/:user", h.wallet)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "endpoint not found", "path": c.Request.URL.Path})
	})
	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		logger.Debug("http request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
