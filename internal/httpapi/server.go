// Package httpapi provides the HTTP API for recalld.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/engine"
	"github.com/fyrsmithlabs/recalld/internal/feedback"
	"github.com/fyrsmithlabs/recalld/internal/knowledge"
	"github.com/fyrsmithlabs/recalld/internal/orchestrator"
)

// maxImportBytes bounds import payloads.
const maxImportBytes = 32 << 20

// Config holds HTTP server configuration.
type Config struct {
	Addr        string
	ReadTimeout time.Duration
}

// Server exposes the engine over HTTP.
type Server struct {
	echo   *echo.Echo
	engine *engine.Engine
	logger *zap.Logger
	cfg    Config
}

// NewServer creates the HTTP server.
func NewServer(eng *engine.Engine, cfg Config, logger *zap.Logger) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8087"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		engine: eng,
		logger: logger.Named("http"),
		cfg:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ask", s.handleAsk)
	v1.POST("/feedback", s.handleFeedback)
	v1.GET("/knowledge/stats", s.handleKnowledgeStats)
	v1.POST("/knowledge", s.handleKnowledgeAdd)
	v1.GET("/storage", s.handleStorageInfo)
	v1.POST("/backup", s.handleBackup)
	v1.GET("/export", s.handleExport)
	v1.POST("/import", s.handleImport)
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Query     string `json:"query"`
}

// FeedbackRequest is the request body for POST /api/v1/feedback.
type FeedbackRequest struct {
	TurnID   string `json:"turn_id"`
	Rating   int    `json:"rating"`
	Comments string `json:"comments"`
}

// KnowledgeAddRequest is the request body for POST /api/v1/knowledge.
type KnowledgeAddRequest struct {
	Content    string   `json:"content"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
	Importance float64  `json:"importance"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	KnowledgeCount int    `json:"knowledge_count"`
	CachedTurns    int    `json:"cached_turns"`
	Degraded       bool   `json:"degraded"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:         "ok",
		KnowledgeCount: s.engine.Store.Len(),
		CachedTurns:    s.engine.Cache.Len(),
		Degraded:       s.engine.Store.Degraded(),
	}
	if resp.Degraded {
		resp.Status = "degraded"
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := s.engine.Ask(c.Request().Context(), orchestrator.Request{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Query:     req.Query,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyQuery) {
			return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
		}
		s.logger.Error("answering query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "answering query failed")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := s.engine.Rate(c.Request().Context(), req.TurnID, req.Rating, req.Comments)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, feedback.ErrInvalidFeedback):
		return echo.NewHTTPError(http.StatusBadRequest, "rating must be between 1 and 5")
	case errors.Is(err, feedback.ErrTurnNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "turn not found")
	default:
		s.logger.Error("applying feedback failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "applying feedback failed")
	}
}

func (s *Server) handleKnowledgeStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Store.Stats())
}

func (s *Server) handleKnowledgeAdd(c echo.Context) error {
	var req KnowledgeAddRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	entry := &knowledge.Entry{
		Content:    req.Content,
		Category:   knowledge.Category(req.Category),
		Tags:       req.Tags,
		Confidence: req.Confidence,
		Importance: req.Importance,
		Source:     knowledge.SourceManual,
	}
	if err := s.engine.Store.Put(c.Request().Context(), entry); err != nil {
		if errors.Is(err, knowledge.ErrInvalidEntry) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("storing knowledge entry failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "storing entry failed")
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": entry.ID})
}

func (s *Server) handleStorageInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Backup.Info(c.Request().Context()))
}

func (s *Server) handleBackup(c echo.Context) error {
	snap, err := s.engine.Backup.Snapshot(c.Request().Context())
	if err != nil {
		s.logger.Error("creating snapshot failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "creating snapshot failed")
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"id":      snap.ID,
		"entries": snap.EntryCount,
	})
}

func (s *Server) handleExport(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	data, err := s.engine.Cache.Export(sessionID)
	if err != nil {
		s.logger.Error("exporting conversations failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "export failed")
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

func (s *Server) handleImport(c echo.Context) error {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxImportBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reading request body failed")
	}

	imported, err := s.engine.Cache.Import(data)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"imported": imported})
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.cfg.Addr))
	return s.echo.Start(s.cfg.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
