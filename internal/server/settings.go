package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"davtodo/internal/models"
)

type syncSettingsRequest struct {
	ServerURL string `json:"serverUrl"`
	Username  string `json:"username"`
	// Password nil keeps the stored password.
	Password     *string `json:"password"`
	AutoSync     bool    `json:"autoSync"`
	SyncInterval int     `json:"syncInterval"`
}

type syncSettingsResponse struct {
	ServerURL    string `json:"serverUrl"`
	Username     string `json:"username"`
	HasPassword  bool   `json:"hasPassword"`
	Enabled      bool   `json:"enabled"`
	AutoSync     bool   `json:"autoSync"`
	SyncInterval int    `json:"syncInterval"`
}

func settingsResponse(cfg models.SyncConfig) syncSettingsResponse {
	return syncSettingsResponse{
		ServerURL:    cfg.ServerURL,
		Username:     cfg.Username,
		HasPassword:  cfg.Password != "",
		Enabled:      cfg.Enabled,
		AutoSync:     cfg.AutoSync,
		SyncInterval: cfg.SyncInterval,
	}
}

// handleListCategories returns the default and in-use categories.
func (s *Server) handleListCategories(c *gin.Context) {
	categories, err := s.store.Categories(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"categories": categories})
}

// handleListTags returns every tag in use.
func (s *Server) handleListTags(c *gin.Context) {
	tags, err := s.store.Tags(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tags": tags})
}

// handleGetSyncSettings returns the sync settings without the password.
func (s *Server) handleGetSyncSettings(c *gin.Context) {
	cfg, err := s.store.GetSyncConfig(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, settingsResponse(cfg))
}

// handleSaveSyncSettings stores new settings and reschedules auto-sync.
func (s *Server) handleSaveSyncSettings(c *gin.Context) {
	var req syncSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	user := currentUser(c)
	cfg, err := s.mergeSettings(c.Request.Context(), user, req)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	saved, err := s.store.SaveSyncConfig(c.Request.Context(), user, cfg)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if s.scheduler != nil {
		s.scheduler.Reload(user, saved)
	}
	respondSuccess(c, http.StatusOK, settingsResponse(saved))
}

// mergeSettings builds a config from req, taking the stored password when
// the request omits it.
func (s *Server) mergeSettings(ctx context.Context, user string, req syncSettingsRequest) (models.SyncConfig, error) {
	cfg := models.SyncConfig{
		ServerURL:    req.ServerURL,
		Username:     req.Username,
		AutoSync:     req.AutoSync,
		SyncInterval: req.SyncInterval,
	}
	if req.Password != nil {
		cfg.Password = *req.Password
		return cfg, nil
	}
	stored, err := s.store.GetSyncConfig(ctx, user)
	if err != nil {
		return models.SyncConfig{}, err
	}
	cfg.Password = stored.Password
	return cfg, nil
}
