package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/internal/server/handlers"
)

// Handlers groups the HTTP adapters mounted by New.
type Handlers struct {
	Auth    *handlers.AuthHandler
	Records *handlers.RecordHandler
	Sync    *handlers.SyncHandler
	Reports *handlers.ReportHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/api/auth/login", h.Auth.Login)

	api := r.Group("/api", h.Auth.RequireSession())
	api.GET("/auth/me", h.Auth.Me)
	api.POST("/auth/logout", h.Auth.Logout)
	if h.Reports != nil {
		api.GET("/reports/finance", h.Reports.Finance)
	}

	api.GET("/:resource", h.Records.List)
	api.POST("/:resource", h.Records.Create)
	api.GET("/:resource/:id", h.Records.Get)
	api.PUT("/:resource/:id", h.Records.Update)
	api.DELETE("/:resource/:id", h.Records.Delete)
	api.POST("/:resource/:id/toggle", h.Records.Toggle)

	sync := r.Group("/sync", h.Auth.RequireSession())
	sync.GET("/:collection/changes", h.Sync.Changes)
	sync.POST("/:collection/bulk_docs", h.Sync.BulkDocs)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
