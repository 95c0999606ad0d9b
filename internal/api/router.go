package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"habittrack/internal/metrics"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	authHandler *AuthHandler,
	progressHandler *ProgressHandler,
	maintenanceHandler *MaintenanceHandler,
	pool *pgxpool.Pool,
	m *metrics.Metrics,
	registry *prometheus.Registry,
	jwtSecret string,
) *Router {
	r := gin.Default()
	r.Use(MetricsMiddleware(m))

	// Public
	r.POST("/register", authHandler.Register)
	r.POST("/login", authHandler.Login)
	r.GET("/health", healthHandler(pool))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.GET("/progress/day", progressHandler.GetDay)
		auth.GET("/progress/week", progressHandler.GetWeek)
		auth.POST("/progress", progressHandler.Update)
		auth.POST("/progress/bulk", progressHandler.BulkUpdate)
		auth.PATCH("/progress/:id", progressHandler.UpdateByID)
		auth.POST("/maintenance/backfill", maintenanceHandler.Backfill)
		auth.POST("/maintenance/recompute", maintenanceHandler.Recompute)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}

func healthHandler(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
