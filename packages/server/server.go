// Package server is the HTTP boundary: it starts pulls in the background and
// serves analysis results as JSON.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gradcafe/packages/analysis"

	"github.com/gin-gonic/gin"
)

// StartPull launches a pull. It returns once the pull is under way; done
// yields the pull's outcome. A non-nil error means nothing was started.
type StartPull func(ctx context.Context) (done <-chan error, err error)

type Analyzer interface {
	Run(ctx context.Context) ([]analysis.Result, error)
	Last() []analysis.Result
}

type Server struct {
	state    *PullState
	start    StartPull
	analyzer Analyzer
	engine   *gin.Engine
	// pulls outlive the request that started them
	background context.Context
}

func New(background context.Context, state *PullState, start StartPull, analyzer Analyzer) *Server {
	s := &Server{
		state:      state,
		start:      start,
		analyzer:   analyzer,
		engine:     gin.New(),
		background: background,
	}
	s.engine.Use(gin.Recovery(), requestLogger())

	s.engine.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/analysis")
	})
	s.engine.POST("/pull-data", s.pullData)
	s.engine.GET("/pull-status", s.pullStatus)
	s.engine.POST("/update-analysis", s.updateAnalysis)
	s.engine.GET("/analysis", s.getAnalysis)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) pullData(c *gin.Context) {
	if !s.state.TryStart() {
		c.JSON(http.StatusConflict, gin.H{"busy": true})
		return
	}

	done, err := s.start(s.background)
	if err != nil {
		s.state.Finish()
		slog.Error("Failed to start pull", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}

	go func() {
		defer s.state.Finish()
		if err := <-done; err != nil {
			slog.Error("Pull finished with errors", "error", err)
			return
		}
		slog.Info("Pull finished")
	}()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) pullStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": s.state.Running()})
}

func (s *Server) updateAnalysis(c *gin.Context) {
	if s.state.Running() {
		c.JSON(http.StatusConflict, gin.H{"busy": true})
		return
	}
	if _, err := s.analyzer.Run(c.Request.Context()); err != nil {
		slog.Error("Analysis refresh failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) getAnalysis(c *gin.Context) {
	results := s.analyzer.Last()
	if results == nil {
		var err error
		results, err = s.analyzer.Run(c.Request.Context())
		if err != nil {
			slog.Error("Analysis failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, results)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	slog.Info("HTTP server listening", "address", addr)
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
