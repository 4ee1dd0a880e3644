package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"davtodo/internal/models"
)

const taskColumns = `id, title, description, completed, priority, category, tags, due_date, created_at, updated_at`

// TaskFilter narrows ListTasks results. Zero fields do not filter.
type TaskFilter struct {
	Category  string
	Tag       string
	Completed *bool
	Priority  models.Priority
}

// TaskPatch carries the fields of a partial update. Nil fields are kept.
type TaskPatch struct {
	Title       *string
	Description *string
	Completed   *bool
	Priority    *models.Priority
	Category    *string
	Tags        *models.Tags
	DueDate     **models.Date
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ListTasks returns every task of the user, newest first.
func (s *Store) ListTasks(ctx context.Context, userID string) ([]models.Task, error) {
	return s.FilterTasks(ctx, userID, TaskFilter{})
}

// FilterTasks returns the user's tasks matching filter, newest first.
func (s *Store) FilterTasks(ctx context.Context, userID string, filter TaskFilter) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{userID}

	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Tag != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(tasks.tags) WHERE json_each.value = ?)`
		args = append(args, filter.Tag)
	}
	if filter.Completed != nil {
		query += ` AND completed = ?`
		args = append(args, *filter.Completed)
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(filter.Priority))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, userID, id string) (models.Task, error) {
	t, err := getTask(ctx, s.db, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// CreateTask assigns an id and timestamps and persists the task.
func (s *Store) CreateTask(ctx context.Context, userID string, t models.Task) (models.Task, error) {
	now := s.stamp()
	t.ID = uuid.New().String()
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)
	t.Category = strings.TrimSpace(t.Category)
	t.Tags = t.Tags.Clean()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	if err := t.Validate(); err != nil {
		return models.Task{}, err
	}

	if err := insertTask(ctx, s.db, userID, t); err != nil {
		return models.Task{}, err
	}
	s.logger.Debug("task created", slog.String("user", userID), slog.String("task", t.ID))
	return t, nil
}

// UpdateTask applies patch and refreshes UpdatedAt.
func (s *Store) UpdateTask(ctx context.Context, userID, id string, patch TaskPatch) (models.Task, error) {
	current, err := s.GetTask(ctx, userID, id)
	if err != nil {
		return models.Task{}, err
	}

	if patch.Title != nil {
		current.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		current.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Completed != nil {
		current.Completed = *patch.Completed
	}
	if patch.Priority != nil {
		current.Priority = *patch.Priority
	}
	if patch.Category != nil {
		current.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Tags != nil {
		current.Tags = patch.Tags.Clean()
	}
	if patch.DueDate != nil {
		current.DueDate = *patch.DueDate
	}

	return s.saveMutation(ctx, userID, current)
}

// ToggleTask flips the completion flag.
func (s *Store) ToggleTask(ctx context.Context, userID, id string) (models.Task, error) {
	current, err := s.GetTask(ctx, userID, id)
	if err != nil {
		return models.Task{}, err
	}
	current.Completed = !current.Completed
	return s.saveMutation(ctx, userID, current)
}

func (s *Store) saveMutation(ctx context.Context, userID string, t models.Task) (models.Task, error) {
	t.UpdatedAt = s.stamp()
	if t.UpdatedAt.Before(t.CreatedAt) {
		t.UpdatedAt = t.CreatedAt
	}
	if err := t.Validate(); err != nil {
		return models.Task{}, err
	}

	tags, err := encodeTags(t.Tags)
	if err != nil {
		return models.Task{}, err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE tasks SET title = ?, description = ?, completed = ?, priority = ?, category = ?, tags = ?, due_date = ?, updated_at = ?
        WHERE user_id = ? AND id = ?`,
		t.Title, t.Description, t.Completed, string(t.Priority), t.Category, tags, dueDateValue(t.DueDate), formatTime(t.UpdatedAt), userID, t.ID)
	if err != nil {
		return models.Task{}, fmt.Errorf("update task: %w", err)
	}
	return t, nil
}

// DeleteTask removes a task by id.
func (s *Store) DeleteTask(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// ApplySync writes the resolved collection of a sync cycle. base is the
// collection the cycle read at its start; rows created, edited or deleted
// since then are left as they are now, so the next cycle picks them up.
// Written records are stored verbatim, timestamps included.
func (s *Store) ApplySync(ctx context.Context, userID string, base, resolved []models.Task) error {
	baseByID := make(map[string]models.Task, len(base))
	for _, t := range base {
		baseByID[t.ID] = t
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync apply: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var written, kept, removed int
	inResolved := make(map[string]struct{}, len(resolved))
	for _, t := range resolved {
		inResolved[t.ID] = struct{}{}
		if err := t.Validate(); err != nil {
			return err
		}

		current, err := getTask(ctx, tx, userID, t.ID)
		found := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read task %s: %w", t.ID, err)
		}
		prev, inBase := baseByID[t.ID]

		switch {
		case inBase && !found, inBase && !current.Equal(prev), !inBase && found:
			// Changed locally while the cycle ran.
			kept++
			continue
		case found && current.Equal(t):
			continue
		}
		if err := upsertTask(ctx, tx, userID, t); err != nil {
			return err
		}
		written++
	}

	for id, prev := range baseByID {
		if _, ok := inResolved[id]; ok {
			continue
		}
		current, err := getTask(ctx, tx, userID, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read task %s: %w", id, err)
		}
		if !current.Equal(prev) {
			kept++
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND id = ?`, userID, id); err != nil {
			return fmt.Errorf("delete task %s: %w", id, err)
		}
		removed++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync apply: %w", err)
	}
	s.logger.Info("sync result applied",
		slog.String("user", userID),
		slog.Int("written", written),
		slog.Int("removed", removed),
		slog.Int("kept_local", kept))
	return nil
}

// Categories returns the default categories followed by any other category
// in use, alphabetically.
func (s *Store) Categories(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM tasks WHERE user_id = ? AND category <> ''`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := append([]string(nil), models.DefaultCategories...)
	known := make(map[string]struct{}, len(out))
	for _, c := range out {
		known[c] = struct{}{}
	}
	var extra []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		if _, ok := known[c]; !ok {
			extra = append(extra, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(extra)
	return append(out, extra...), nil
}

// Tags returns every distinct tag used by the user, alphabetically.
func (s *Store) Tags(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT json_each.value FROM tasks, json_each(tasks.tags)
        WHERE tasks.user_id = ? ORDER BY json_each.value`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTask(ctx context.Context, db queryer, userID, id string) (models.Task, error) {
	row := db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = ? AND id = ?`, userID, id)
	return scanTask(row)
}

func upsertTask(ctx context.Context, db execer, userID string, t models.Task) error {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO tasks(id, user_id, title, description, completed, priority, category, tags, due_date, created_at, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(user_id, id) DO UPDATE SET
            title = excluded.title,
            description = excluded.description,
            completed = excluded.completed,
            priority = excluded.priority,
            category = excluded.category,
            tags = excluded.tags,
            due_date = excluded.due_date,
            created_at = excluded.created_at,
            updated_at = excluded.updated_at`,
		t.ID, userID, t.Title, t.Description, t.Completed, string(t.Priority), t.Category, tags,
		dueDateValue(t.DueDate), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", t.ID, err)
	}
	return nil
}

func insertTask(ctx context.Context, db execer, userID string, t models.Task) error {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO tasks(id, user_id, title, description, completed, priority, category, tags, due_date, created_at, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, userID, t.Title, t.Description, t.Completed, string(t.Priority), t.Category, tags,
		dueDateValue(t.DueDate), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

func scanTask(row rowScanner) (models.Task, error) {
	var (
		t         models.Task
		priority  string
		tags      string
		due       sql.NullString
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &priority, &t.Category, &tags, &due, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Task{}, err
		}
		return models.Task{}, fmt.Errorf("scan task: %w", err)
	}
	t.Priority = models.Priority(priority)

	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return models.Task{}, fmt.Errorf("decode tags of %s: %w", t.ID, err)
	}
	if t.Tags == nil {
		t.Tags = models.Tags{}
	}
	if due.Valid && due.String != "" {
		d, err := models.ParseDate(due.String)
		if err != nil {
			return models.Task{}, fmt.Errorf("decode due date of %s: %w", t.ID, err)
		}
		t.DueDate = &d
	}

	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Task{}, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

func encodeTags(tags models.Tags) (string, error) {
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}

func dueDateValue(d *models.Date) any {
	if d == nil {
		return nil
	}
	return d.Text()
}
