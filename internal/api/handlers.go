package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/costmgr/costmgr/internal/logger"
	"github.com/costmgr/costmgr/internal/models"
	"github.com/costmgr/costmgr/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

// respondErr maps the service's typed contract errors onto status codes.
func (s *Server) respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRunNotFound), errors.Is(err, service.ErrNoAuditRecords):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrRunNotScored), errors.Is(err, service.ErrNoExecution):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		s.log.Error("request failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleScan(c *gin.Context) {
	var req models.ScanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}

	resp, err := s.svc.Scan(c.Request.Context(), req)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleScore(c *gin.Context) {
	resp, err := s.svc.Score(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleExecute(c *gin.Context) {
	var req models.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	resp, err := s.svc.Execute(c.Request.Context(), req)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRollback(c *gin.Context) {
	var req models.RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	resp, err := s.svc.Rollback(c.Request.Context(), req)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.svc.ListRuns()})
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, audit, err := s.svc.GetRun(c.Param("run_id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "audit": audit})
}

func (s *Server) handleGetAudit(c *gin.Context) {
	records, err := s.svc.GetAudit(c.Param("run_id"), c.Query("execution_id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit": records})
}
