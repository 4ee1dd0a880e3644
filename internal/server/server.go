package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"davtodo/internal/storage/sqlite"
	"davtodo/internal/tasksync"
)

// UserHeader carries the authenticated user id set by the upstream proxy.
const UserHeader = "X-User-ID"

const userKey = "userID"

// Options holds the optional server settings.
type Options struct {
	// StaticDir is the built frontend. Empty means API only.
	StaticDir string
	// DefaultUser is used when a request carries no UserHeader.
	DefaultUser string
}

// Server provides HTTP handlers for tasks and WebDAV synchronization.
type Server struct {
	engine    *gin.Engine
	store     *sqlite.Store
	syncer    *tasksync.Syncer
	scheduler *tasksync.Scheduler
	logger    *slog.Logger
	opts      Options

	streams     context.Context
	stopStreams context.CancelFunc
}

// New constructs the HTTP server with routes and middleware configured.
// scheduler may be nil when auto-sync is not running.
func New(store *sqlite.Store, syncer *tasksync.Syncer, scheduler *tasksync.Scheduler, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api/healthz", "/api/sync/ws"))

	streams, stop := context.WithCancel(context.Background())
	srv := &Server{
		engine:      router,
		store:       store,
		syncer:      syncer,
		scheduler:   scheduler,
		logger:      logger,
		opts:        opts,
		streams:     streams,
		stopStreams: stop,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// CloseStreams ends every open status stream. http.Server.Shutdown does not
// track hijacked connections, so register this with RegisterOnShutdown.
func (s *Server) CloseStreams() {
	s.stopStreams()
}

// registerRoutes wires all API and static handlers together.
func (s *Server) registerRoutes() {
	s.engine.GET("/api/healthz", s.handleHealth)

	api := s.engine.Group("/api", s.identify)
	{
		tasks := api.Group("/tasks")
		{
			tasks.GET("", s.handleListTasks)
			tasks.POST("", s.handleCreateTask)
			tasks.PUT(":id", s.handleUpdateTask)
			tasks.POST(":id/toggle", s.handleToggleTask)
			tasks.DELETE(":id", s.handleDeleteTask)
		}

		api.GET("/categories", s.handleListCategories)
		api.GET("/tags", s.handleListTags)

		api.GET("/settings/sync", s.handleGetSyncSettings)
		api.PUT("/settings/sync", s.handleSaveSyncSettings)

		sync := api.Group("/sync")
		{
			sync.POST("", s.handleSync)
			sync.GET("/status", s.handleSyncStatus)
			sync.POST("/test", s.handleTestConnection)
			sync.GET("/ws", s.handleSyncStream)
		}
	}

	s.mountStatic()
}

// handleHealth reports readiness once the database answers.
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.respondError(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// identify resolves the user of the request.
func (s *Server) identify(c *gin.Context) {
	user := strings.TrimSpace(c.GetHeader(UserHeader))
	if user == "" {
		user = s.opts.DefaultUser
	}
	if user == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + UserHeader + " header"})
		return
	}
	c.Set(userKey, user)
	c.Next()
}

func currentUser(c *gin.Context) string {
	return c.GetString(userKey)
}

// parseID reads a non-empty path identifier.
func parseID(c *gin.Context, name string) (string, bool) {
	id := strings.TrimSpace(c.Param(name))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return "", false
	}
	return id, true
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(c.Request.Context(), level, "request failed",
		slog.String("path", c.FullPath()),
		slog.String("user", currentUser(c)),
		slog.Int("status", status),
		slog.String("error", err.Error()))
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondSuccess writes payload as JSON, or only the status when it is nil.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
