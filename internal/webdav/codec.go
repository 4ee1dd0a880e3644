package webdav

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"davtodo/internal/models"
)

// wireTask mirrors models.Task with pointer fields so that missing keys can be
// told apart from zero values.
type wireTask struct {
	ID          *string          `json:"id"`
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Completed   *bool            `json:"completed"`
	Priority    *models.Priority `json:"priority"`
	Category    *string          `json:"category"`
	Tags        *[]string        `json:"tags"`
	DueDate     *models.Date     `json:"dueDate"`
	CreatedAt   *time.Time       `json:"createdAt"`
	UpdatedAt   *time.Time       `json:"updatedAt"`
}

// Encode renders a task collection as the remote document: a JSON array
// indented with two spaces. An empty or nil collection encodes as [].
func Encode(tasks []models.Task) ([]byte, error) {
	if tasks == nil {
		tasks = []models.Task{}
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}
	return data, nil
}

// Decode parses and validates a remote document. Unknown keys are ignored;
// keys must match in case. Missing required keys, wrong types, invalid values and duplicate
// identifiers are reported as ErrMalformedData.
func Decode(data []byte) ([]models.Task, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: document is not a JSON array", ErrMalformedData)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedData, err)
	}

	tasks := make([]models.Task, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, item := range raw {
		task, err := decodeTask(item)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %w", ErrMalformedData, i, err)
		}
		if _, dup := seen[task.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate task id %q", ErrMalformedData, task.ID)
		}
		seen[task.ID] = struct{}{}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// wireKeys are the exact key spellings of a task object.
var wireKeys = []string{"id", "title", "description", "completed", "priority", "category", "tags", "dueDate", "createdAt", "updatedAt"}

// checkKeys rejects keys that differ from a task key only by case, which
// encoding/json would otherwise accept.
func checkKeys(item json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		return err
	}
	for key := range fields {
		for _, want := range wireKeys {
			if key != want && strings.EqualFold(key, want) {
				return fmt.Errorf("key %q must be spelled %q", key, want)
			}
		}
	}
	return nil
}

func decodeTask(item json.RawMessage) (models.Task, error) {
	if err := checkKeys(item); err != nil {
		return models.Task{}, err
	}

	var w wireTask
	if err := json.Unmarshal(item, &w); err != nil {
		return models.Task{}, err
	}

	var missing []string
	if w.ID == nil {
		missing = append(missing, "id")
	}
	if w.Title == nil {
		missing = append(missing, "title")
	}
	if w.Completed == nil {
		missing = append(missing, "completed")
	}
	if w.Priority == nil {
		missing = append(missing, "priority")
	}
	if w.Category == nil {
		missing = append(missing, "category")
	}
	if w.Tags == nil {
		missing = append(missing, "tags")
	}
	if w.CreatedAt == nil {
		missing = append(missing, "createdAt")
	}
	if w.UpdatedAt == nil {
		missing = append(missing, "updatedAt")
	}
	if len(missing) > 0 {
		return models.Task{}, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}

	task := models.Task{
		ID:        *w.ID,
		Title:     *w.Title,
		Completed: *w.Completed,
		Priority:  *w.Priority,
		Category:  *w.Category,
		Tags:      models.Tags(*w.Tags),
		DueDate:   w.DueDate,
		CreatedAt: *w.CreatedAt,
		UpdatedAt: *w.UpdatedAt,
	}
	if w.Description != nil {
		task.Description = *w.Description
	}
	if task.Tags == nil {
		task.Tags = models.Tags{}
	}
	if err := task.Validate(); err != nil {
		return models.Task{}, err
	}
	return task, nil
}
