package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"davtodo/internal/tasksync"
	"davtodo/internal/webdav"
)

const streamWriteTimeout = 5 * time.Second

// handleSyncStatus returns the current status of the user.
func (s *Server) handleSyncStatus(c *gin.Context) {
	respondSuccess(c, http.StatusOK, s.syncer.Status(currentUser(c)))
}

// handleSync runs one cycle and returns the resulting status. A failed
// cycle still answers 200 with the error status.
func (s *Server) handleSync(c *gin.Context) {
	// The cycle outlives a client that hangs up; adapter timeouts bound it.
	ctx := context.WithoutCancel(c.Request.Context())

	status, err := s.syncer.RequestSync(ctx, currentUser(c))
	switch {
	case errors.Is(err, tasksync.ErrSyncInProgress), errors.Is(err, tasksync.ErrSyncDisabled):
		s.logger.Info("sync request rejected", slog.String("user", currentUser(c)), slog.String("reason", err.Error()))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": status})
	case err != nil:
		s.respondError(c, http.StatusInternalServerError, err)
	default:
		respondSuccess(c, http.StatusOK, status)
	}
}

// handleTestConnection checks the posted settings without saving them.
func (s *Server) handleTestConnection(c *gin.Context) {
	var req syncSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	cfg, err := s.mergeSettings(c.Request.Context(), currentUser(c), req)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	ok, err := s.syncer.TestConnection(c.Request.Context(), cfg.Normalize())
	if errors.Is(err, webdav.ErrConfiguration) {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		s.respondError(c, http.StatusBadGateway, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"ok": ok})
}

// handleSyncStream pushes the user's status over a websocket, starting with
// the current one, until either side closes.
func (s *Server) handleSyncStream(c *gin.Context) {
	user := currentUser(c)

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("user", user), slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	updates, cancel := s.syncer.Subscribe(user)
	defer cancel()

	// CloseRead discards client frames and cancels ctx once the peer leaves.
	ctx := conn.CloseRead(s.streams)

	if err := s.writeStatus(ctx, conn, s.syncer.Status(user)); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			if s.streams.Err() != nil {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			}
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := s.writeStatus(ctx, conn, status); err != nil {
				s.logger.Debug("status stream closed", slog.String("user", user), slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (s *Server) writeStatus(ctx context.Context, conn *websocket.Conn, status any) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, status)
}
