package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"davtodo/internal/models"
	"davtodo/internal/storage/sqlite"
)

type taskRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Completed   *bool            `json:"completed"`
	Priority    *models.Priority `json:"priority"`
	Category    *string          `json:"category"`
	Tags        *models.Tags     `json:"tags"`
	// DueDate is YYYY-MM-DD; an empty string clears it.
	DueDate *string `json:"dueDate"`
}

// handleListTasks returns the user's tasks, optionally filtered.
func (s *Server) handleListTasks(c *gin.Context) {
	filter := sqlite.TaskFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Tag:      strings.TrimSpace(c.Query("tag")),
	}
	if raw := c.Query("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, fmt.Errorf("invalid completed filter %q", raw))
			return
		}
		filter.Completed = &completed
	}
	if raw := c.Query("priority"); raw != "" {
		filter.Priority = models.Priority(raw)
		if !filter.Priority.Valid() {
			s.respondError(c, http.StatusBadRequest, fmt.Errorf("invalid priority filter %q", raw))
			return
		}
	}

	tasks, err := s.store.FilterTasks(c.Request.Context(), currentUser(c), filter)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

// handleCreateTask inserts a new task for the user.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("title is required"))
		return
	}

	task := models.Task{
		Title:       *req.Title,
		Description: getString(req.Description),
		Category:    getString(req.Category),
		Completed:   req.Completed != nil && *req.Completed,
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.Tags != nil {
		task.Tags = *req.Tags
	}
	if req.DueDate != nil && *req.DueDate != "" {
		due, err := models.ParseDate(*req.DueDate)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return
		}
		task.DueDate = &due
	}

	created, err := s.store.CreateTask(c.Request.Context(), currentUser(c), task)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": created})
}

// handleUpdateTask applies a partial update.
func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("title must not be empty"))
		return
	}

	patch := sqlite.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
		Priority:    req.Priority,
		Category:    req.Category,
		Tags:        req.Tags,
	}
	if req.DueDate != nil {
		var due *models.Date
		if *req.DueDate != "" {
			parsed, err := models.ParseDate(*req.DueDate)
			if err != nil {
				s.respondError(c, http.StatusBadRequest, err)
				return
			}
			due = &parsed
		}
		patch.DueDate = &due
	}

	task, err := s.store.UpdateTask(c.Request.Context(), currentUser(c), id, patch)
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleToggleTask flips the completion flag.
func (s *Server) handleToggleTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	task, err := s.store.ToggleTask(c.Request.Context(), currentUser(c), id)
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleDeleteTask removes a task.
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := s.store.DeleteTask(c.Request.Context(), currentUser(c), id); err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	respondSuccess(c, http.StatusNoContent, nil)
}

// statusFor maps store errors of a mutation to a response code. Anything
// other than a missing task failed validation.
func statusFor(err error) int {
	if errors.Is(err, sqlite.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func getString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
