// Package api exposes the optimization pipeline over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/costmgr/costmgr/internal/logger"
	"github.com/costmgr/costmgr/internal/service"
)

// Server carries the handler dependencies.
type Server struct {
	svc *service.Service
	log logger.Logger
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(svc *service.Service, gatherer prometheus.Gatherer) *gin.Engine {
	s := &Server{
		svc: svc,
		log: logger.New("api"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/scan", s.handleScan)
		v1.POST("/runs/:run_id/score", s.handleScore)
		v1.POST("/execute", s.handleExecute)
		v1.POST("/rollback", s.handleRollback)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:run_id", s.handleGetRun)
		v1.GET("/runs/:run_id/audit", s.handleGetAudit)
	}

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)))
	}
}
