package server

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// mountStatic serves the built frontend. Unknown paths outside /api fall
// back to index.html so client side routes survive a reload.
func (s *Server) mountStatic() {
	index := s.staticIndex()
	s.engine.NoRoute(func(c *gin.Context) {
		if index == "" || strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.File(index)
	})
	if index == "" {
		return
	}

	s.engine.GET("/", func(c *gin.Context) {
		c.File(index)
	})

	assets := filepath.Join(s.opts.StaticDir, "assets")
	if info, err := os.Stat(assets); err == nil && info.IsDir() {
		s.engine.StaticFS("/assets", gin.Dir(assets, false))
	}

	favicon := filepath.Join(s.opts.StaticDir, "favicon.ico")
	if _, err := os.Stat(favicon); err == nil {
		s.engine.StaticFile("/favicon.ico", favicon)
	}
}

// staticIndex returns the index.html path, or "" in API only mode.
func (s *Server) staticIndex() string {
	dir := s.opts.StaticDir
	if dir == "" {
		s.logger.Info("static directory not configured; API only mode")
		return ""
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		s.logger.Warn("static directory missing", slog.String("path", dir))
		return ""
	}

	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		s.logger.Warn("index.html not found", slog.String("path", index))
		return ""
	}
	return index
}
