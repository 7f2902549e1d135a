// Package api provides the HTTP API adapter. It exposes the query
// and ingest services as a small JSON API for site-embedded widgets
// and internal tooling.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/campusrag/internal/core/domain"
	"github.com/custodia-labs/campusrag/internal/core/ports/driving"
	"github.com/custodia-labs/campusrag/internal/logger"
)

// Server is the HTTP API server.
type Server struct {
	engine *gin.Engine
	query  driving.QueryService
	ingest driving.IngestService
	addr   string
}

// NewServer creates the API server and registers its routes.
func NewServer(query driving.QueryService, ingest driving.IngestService, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		query:  query,
		ingest: ingest,
		addr:   addr,
	}

	engine.GET("/healthz", s.handleHealth)
	v1 := engine.Group("/v1")
	{
		v1.POST("/query", s.handleQuery)
		v1.POST("/ingest", s.handleIngest)
	}

	return s
}

// Handler returns the underlying HTTP handler, for tests and
// embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info("API server listening on %s", s.addr)
	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

type errorResponse struct {
	Error string `json:"error"`
}

type queryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type queryResponse struct {
	Found   bool                  `json:"found"`
	Answer  string                `json:"answer"`
	Chunks  []domain.ContextChunk `json:"chunks,omitempty"`
	Sources []domain.SourceRef    `json:"sources,omitempty"`
	Images  []domain.AnswerImage  `json:"images,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	answer, err := s.query.Query(c.Request.Context(), req.Query, domain.QueryOptions{Limit: req.Limit})
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "query must not be empty"})
		return
	case errors.Is(err, domain.ErrInsufficientContext):
		// An unanswerable question is a valid outcome, not a server
		// error. The widget shows this verbatim.
		c.JSON(http.StatusOK, queryResponse{
			Found:  false,
			Answer: "No indexed page contains an answer to this question.",
		})
		return
	case err != nil:
		logger.Error("Query failed: %v", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "query failed"})
		return
	}

	c.JSON(http.StatusOK, queryResponse{
		Found:   true,
		Answer:  answer.Answer,
		Chunks:  answer.Chunks,
		Sources: answer.Sources,
		Images:  answer.Images,
	})
}

type ingestRequest struct {
	URLs []string `json:"urls"`
}

type ingestResponse struct {
	PagesIngested      int `json:"pages_ingested"`
	PagesEmpty         int `json:"pages_empty"`
	PagesFailed        int `json:"pages_failed"`
	DuplicatesExcluded int `json:"duplicates_excluded"`
	Chunks             int `json:"chunks"`
	Images             int `json:"images"`
}

func (s *Server) handleIngest(c *gin.Context) {
	if s.ingest == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "ingest service not configured"})
		return
	}

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if len(req.URLs) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "urls must not be empty"})
		return
	}

	report, err := s.ingest.Ingest(c.Request.Context(), req.URLs)
	if err != nil {
		logger.Error("Ingest failed: %v", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "ingest failed"})
		return
	}

	c.JSON(http.StatusOK, ingestResponse{
		PagesIngested:      report.PagesIngested,
		PagesEmpty:         report.PagesEmpty,
		PagesFailed:        report.PagesFailed,
		DuplicatesExcluded: report.DuplicatesExcluded,
		Chunks:             report.Chunks,
		Images:             report.Images,
	})
}
