package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/integritystudio/alephauto/internal/api/middleware"
	"github.com/integritystudio/alephauto/internal/config"
	"github.com/integritystudio/alephauto/internal/health"
	"github.com/integritystudio/alephauto/internal/logging"
)

// Handlers bundles every route handler the router wires up.
type Handlers struct {
	Jobs    *JobsHandler
	Scans   *ScansHandler
	Status  *StatusHandler
	Reports *ReportsHandler
	Events  *EventsHandler
	Health  *health.Checker
}

// NewRouter assembles the gin engine: middleware ordering, route
// registration and the /metrics endpoint, following the
// recovery-then-logging-then-CORS-then-grouped-routes shape of
// internal/api/api.go's SetupRouter.
func NewRouter(cfg config.ServerConfig, log logging.Logger, h Handlers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logging(log))
	router.Use(corsMiddleware(cfg.CORSOrigins))

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	health.RegisterRoutes(router, h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(limiter.Middleware())

	registerPipelineRoutes(api, h.Jobs)
	registerScanRoutes(api, h.Scans, h.Jobs)
	registerStatusRoutes(api, h.Status)
	registerReportsRoutes(api, h.Reports)
	registerEventsRoutes(api, h.Events)

	return router
}

func registerPipelineRoutes(api *gin.RouterGroup, jobs *JobsHandler) {
	pipelines := api.Group("/pipelines")
	pipelines.POST("/:id/trigger", jobs.Trigger)
	pipelines.GET("/:id/jobs", jobs.ListJobs)
	pipelines.DELETE("/:id/jobs/:jobId", jobs.Cancel)
}

func registerScanRoutes(api *gin.RouterGroup, scans *ScansHandler, jobs *JobsHandler) {
	s := api.Group("/scans")
	s.POST("/start", scans.Start)
	s.POST("/start-multi", scans.StartMulti)
	s.GET("/recent", scans.Recent)
	s.GET("/stats", scans.Stats)
	s.GET("/:scanId/status", jobs.GetJobStatus)
	s.GET("/:scanId/results", jobs.GetJobResults)
	s.DELETE("/:scanId", jobs.Cancel)
}

func registerStatusRoutes(api *gin.RouterGroup, status *StatusHandler) {
	api.GET("/status", status.System)
	api.GET("/pipelines/:id/status", status.Pipeline)
}

func registerReportsRoutes(api *gin.RouterGroup, reports *ReportsHandler) {
	r := api.Group("/reports")
	r.GET("", reports.List)
	r.GET("/:filename", reports.Get)
	r.DELETE("/:filename", reports.Delete)
}

func registerEventsRoutes(api *gin.RouterGroup, events *EventsHandler) {
	api.GET("/events", events.Stream)
}

// corsMiddleware builds gin-contrib/cors config from a configurable
// origin list.
func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.DefaultConfig()
	if len(origins) == 1 && origins[0] == "*" {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	return cors.New(c)
}
