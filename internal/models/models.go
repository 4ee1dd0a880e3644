package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the supported priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// DefaultCategories are offered to every user even before any task uses them.
var DefaultCategories = []string{"Personal", "Work", "Study", "Other"}

// Task represents a single to-do item owned by one user.
type Task struct {
	ID          string    `json:"id" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	Priority    Priority  `json:"priority" validate:"required,oneof=low medium high"`
	Category    string    `json:"category"`
	Tags        Tags      `json:"tags" validate:"unique"`
	DueDate     *Date     `json:"dueDate,omitempty"`
	CreatedAt   time.Time `json:"createdAt" validate:"required"`
	UpdatedAt   time.Time `json:"updatedAt" validate:"required,gtefield=CreatedAt"`
}

// Equal reports whether two tasks carry the same field values. Timestamps are
// compared as instants.
func (t Task) Equal(o Task) bool {
	if t.ID != o.ID || t.Title != o.Title || t.Description != o.Description ||
		t.Completed != o.Completed || t.Priority != o.Priority || t.Category != o.Category {
		return false
	}
	if !t.CreatedAt.Equal(o.CreatedAt) || !t.UpdatedAt.Equal(o.UpdatedAt) {
		return false
	}
	if (t.DueDate == nil) != (o.DueDate == nil) {
		return false
	}
	if t.DueDate != nil && !t.DueDate.Time.Equal(o.DueDate.Time) {
		return false
	}
	if len(t.Tags) != len(o.Tags) {
		return false
	}
	for i := range t.Tags {
		if t.Tags[i] != o.Tags[i] {
			return false
		}
	}
	return true
}

// Tags is the set of labels attached to a task. It always encodes as a JSON
// array, never null.
type Tags []string

// MarshalJSON implements json.Marshaler.
func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}

// Clean trims every tag, drops empty ones and removes duplicates while
// keeping the first occurrence order.
func (t Tags) Clean() Tags {
	out := make(Tags, 0, len(t))
	seen := make(map[string]struct{}, len(t))
	for _, tag := range t {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Contains reports whether tag is present.
func (t Tags) Contains(tag string) bool {
	for _, v := range t {
		if v == tag {
			return true
		}
	}
	return false
}

// DateLayout is the wire and storage format of due dates.
const DateLayout = "2006-01-02"

// Date is a calendar day without time of day. A date written as a full
// timestamp keeps its text so it is written back unchanged.
type Date struct {
	time.Time
	text string
}

// ParseDate accepts a plain date or a full RFC 3339 timestamp and keeps the
// day as written in the timestamp's own offset.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return Date{
		Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		text: s,
	}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Time.Format(DateLayout)
}

// Text returns the date as it was written.
func (d Date) Text() string {
	if d.text != "" {
		return d.text
	}
	return d.String()
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Text())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("dueDate must be a string: %w", err)
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Sync interval bounds in minutes.
const (
	DefaultSyncInterval = 5
	MinSyncInterval     = 1
	MaxSyncInterval     = 60
)

// SyncConfig holds the WebDAV connection parameters of one user.
type SyncConfig struct {
	ServerURL    string `json:"serverUrl"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Enabled      bool   `json:"enabled"`
	AutoSync     bool   `json:"autoSync"`
	SyncInterval int    `json:"syncInterval" validate:"min=1,max=60"`
}

// Complete reports whether every connection parameter is present.
func (c SyncConfig) Complete() bool {
	return c.ServerURL != "" && c.Username != "" && c.Password != ""
}

// Normalize trims the connection fields, derives Enabled and clamps the
// interval into the supported range.
func (c SyncConfig) Normalize() SyncConfig {
	c.ServerURL = strings.TrimSpace(c.ServerURL)
	c.Username = strings.TrimSpace(c.Username)
	c.Enabled = c.Complete()
	switch {
	case c.SyncInterval == 0:
		c.SyncInterval = DefaultSyncInterval
	case c.SyncInterval < MinSyncInterval:
		c.SyncInterval = MinSyncInterval
	case c.SyncInterval > MaxSyncInterval:
		c.SyncInterval = MaxSyncInterval
	}
	return c
}

// Interval returns the auto-sync period.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.SyncInterval) * time.Minute
}

// SyncState is the phase of the sync status machine.
type SyncState string

const (
	SyncIdle    SyncState = "idle"
	SyncSyncing SyncState = "syncing"
	SyncSuccess SyncState = "success"
	SyncError   SyncState = "error"
)

// SyncStatus reports the outcome of the latest sync cycle of a user.
type SyncStatus struct {
	Status       SyncState  `json:"status"`
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`
	Error        string     `json:"error,omitempty"`
}
