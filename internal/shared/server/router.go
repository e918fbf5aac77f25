package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clinical-backend/internal/shared/config"
	"clinical-backend/internal/shared/metrics"
	"clinical-backend/internal/shared/server/middleware"
	"clinical-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers mounted by NewRouter.
type RouterDeps struct {
	Config     config.Config
	JobHandler RouteRegistrar
}

// RouteRegistrar mounts routes on a router group.
type RouteRegistrar interface {
	Register(r gin.IRouter)
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.DefaultRateLimitConfig()),
	)

	r.GET("/", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"status": "Clinical AI Backend Running"})
	})
	r.GET("/api/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	if deps.JobHandler != nil {
		deps.JobHandler.Register(r)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
