package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"resumable-upload-core/pkg/coordinator"
	"resumable-upload-core/pkg/logging"
	"resumable-upload-core/pkg/metrics"
)

// Server is the thin HTTP adapter over the Coordinator: it parses
// requests, calls into the Coordinator, and maps its error kinds to
// status codes.
type Server struct {
	router      *gin.Engine
	coordinator *coordinator.Coordinator
	serverID    string
	logger      *logging.Logger
}

// New builds a Server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		router:      gin.Default(),
		coordinator: cfg.Coordinator,
		serverID:    cfg.ServerID,
		logger:      cfg.Logger,
	}
	s.router.Use(MetricsMiddleware(cfg.ServerID))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/upload")
	api.POST("/init", s.handleInit)
	api.POST("/chunk", s.handleChunk)
	api.GET("/:uploadId/status", s.handleStatus)

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/system/health", s.handleSystemHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Run starts the server on addr (e.g. ":3001").
func (s *Server) Run(addr string) error {
	s.logger.Info("upload coordinator starting", zap.String("addr", addr), zap.String("server_id", s.serverID))
	return s.router.Run(addr)
}

type initRequest struct {
	UploadID string `json:"uploadId"`
	Filename string `json:"filename"`
	FileSize int64  `json:"fileSize"`
}

func (s *Server) handleInit(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := s.coordinator.Init(c.Request.Context(), req.UploadID, req.Filename, req.FileSize)
	if err != nil {
		s.respondError(c, "init", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"uploadId":       result.ID,
		"uploadedChunks": result.UploadedChunks,
		"status":         result.Status,
	})
}

func (s *Server) handleChunk(c *gin.Context) {
	uploadID := c.PostForm("uploadId")
	chunkIndexRaw := c.PostForm("chunkIndex")

	if uploadID == "" || chunkIndexRaw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uploadId and chunkIndex are required"})
		return
	}
	index, err := strconv.Atoi(chunkIndexRaw)
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chunkIndex must be a non-negative integer"})
		return
	}

	fileHeader, err := c.FormFile("chunk")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chunk part is required: " + err.Error()})
		return
	}

	payload, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open chunk part: " + err.Error()})
		return
	}
	defer payload.Close()

	result, err := s.coordinator.ReceiveChunk(c.Request.Context(), uploadID, index, payload)
	if err != nil {
		s.respondError(c, "receive_chunk", err)
		return
	}

	response := gin.H{
		"success":        true,
		"isComplete":     result.IsComplete,
		"receivedChunks": result.Received,
		"totalChunks":    result.TotalChunks,
	}
	if result.Message != "" {
		response["message"] = result.Message
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) handleStatus(c *gin.Context) {
	uploadID := c.Param("uploadId")

	session, chunks, err := s.coordinator.GetStatus(c.Request.Context(), uploadID)
	if err != nil {
		s.respondError(c, "get_status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"upload": session,
		"chunks": chunks,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK", "serverID": s.serverID})
}

func (s *Server) handleSystemHealth(c *gin.Context) {
	sysMetrics, err := metrics.GetSystemMetrics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	metrics.ActiveConnections.WithLabelValues(s.serverID).Set(float64(sysMetrics.ActiveConnections))
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"cpuPercent":    sysMetrics.CPUUsagePercent,
		"memoryUsed":    sysMetrics.MemoryUsedBytes,
		"diskUsed":      sysMetrics.DiskUsedBytes,
		"connections":   sysMetrics.ActiveConnections,
	})
}

// respondError maps a Coordinator error kind to an HTTP status and JSON
// body.
func (s *Server) respondError(c *gin.Context, operation string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, coordinator.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, coordinator.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, coordinator.ErrWriteError),
		errors.Is(err, coordinator.ErrStoreError),
		errors.Is(err, coordinator.ErrFinalization):
		status = http.StatusInternalServerError
	}

	if status >= 500 {
		if errors.Is(err, coordinator.ErrStoreError) {
			metrics.StoreErrorsTotal.WithLabelValues(operation, s.serverID).Inc()
		}
		s.logger.Error("request failed", zap.String("operation", operation), zap.Error(err))
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
