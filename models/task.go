package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/biosecret/go-tasks/apperror"
)

// Status is the task progress state. Any status may follow any other.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// ParseStatus accepts the canonical names plus the "in_progress" spelling
// used by older clients.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(StatusPending):
		return StatusPending, nil
	case string(StatusInProgress), "in_progress":
		return StatusInProgress, nil
	case string(StatusCompleted):
		return StatusCompleted, nil
	}
	return "", apperror.InvalidInput("status must be one of pending, in-progress, completed")
}

// StatusFromCompleted maps the legacy boolean onto the enum.
func StatusFromCompleted(completed bool) Status {
	if completed {
		return StatusCompleted
	}
	return StatusPending
}

// Task is a unit of work owned by exactly one user.
type Task struct {
	ID          string
	Title       string
	Description string
	Status      Status
	DueDate     *time.Time
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Completed is derived from Status.
func (t Task) Completed() bool {
	return t.Status == StatusCompleted
}

type taskJSON struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	OwnerID     string     `json:"ownerId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (t Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(taskJSON{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Completed:   t.Completed(),
		DueDate:     t.DueDate,
		OwnerID:     t.OwnerID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	})
}

// UnmarshalJSON reads both shapes; a payload without status falls back
// to its completed flag.
func (t *Task) UnmarshalJSON(data []byte) error {
	var raw taskJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status := raw.Status
	if status == "" {
		status = StatusFromCompleted(raw.Completed)
	}
	*t = Task{
		ID:          raw.ID,
		Title:       raw.Title,
		Description: raw.Description,
		Status:      status,
		DueDate:     raw.DueDate,
		OwnerID:     raw.OwnerID,
		CreatedAt:   raw.CreatedAt,
		UpdatedAt:   raw.UpdatedAt,
	}
	return nil
}

// CreateTaskInput is the body of a create request.
type CreateTaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     *Date  `json:"dueDate,omitempty"`
	Status      Status `json:"status,omitempty"`
	Completed   *bool  `json:"completed,omitempty"`
}

// Normalize trims text fields, validates them and folds the legacy
// completed flag into Status.
func (in CreateTaskInput) Normalize() (CreateTaskInput, error) {
	out := in
	out.Title = strings.TrimSpace(in.Title)
	if out.Title == "" {
		return CreateTaskInput{}, apperror.InvalidInput("title is required")
	}
	out.Description = strings.TrimSpace(in.Description)

	status := StatusPending
	if in.Status != "" {
		parsed, err := ParseStatus(string(in.Status))
		if err != nil {
			return CreateTaskInput{}, err
		}
		status = parsed
	}
	if in.Completed != nil {
		if in.Status == "" {
			status = StatusFromCompleted(*in.Completed)
		} else if *in.Completed != (status == StatusCompleted) {
			return CreateTaskInput{}, apperror.InvalidInput("status and completed disagree")
		}
	}
	out.Status = status
	out.Completed = nil
	return out, nil
}

// TaskPatch is the field mask of an update: only Set fields change.
type TaskPatch struct {
	Title       Optional[string] `json:"title,omitzero"`
	Description Optional[string] `json:"description,omitzero"`
	DueDate     Optional[Date]   `json:"dueDate,omitzero"`
	Status      Optional[Status] `json:"status,omitzero"`
	Completed   Optional[bool]   `json:"completed,omitzero"`
}

// Resolve validates the patch against the current task and returns a
// normalized copy: text trimmed, a null description read as empty, and
// Completed folded into Status. A null DueDate stays null and clears the
// date.
func (p TaskPatch) Resolve(current Task) (TaskPatch, error) {
	out := TaskPatch{DueDate: p.DueDate}
	if out.DueDate.Present() {
		// stores keep milliseconds
		out.DueDate.Value = Date{out.DueDate.Value.UTC().Truncate(time.Millisecond)}
	}

	if p.Title.Set {
		title := strings.TrimSpace(p.Title.Value)
		if p.Title.Null || title == "" {
			return TaskPatch{}, apperror.InvalidInput("title cannot be empty")
		}
		out.Title = Some(title)
	}
	if p.Description.Set {
		out.Description = Some(strings.TrimSpace(p.Description.Value))
	}
	if p.Status.Set {
		if p.Status.Null {
			return TaskPatch{}, apperror.InvalidInput("status cannot be null")
		}
		status, err := ParseStatus(string(p.Status.Value))
		if err != nil {
			return TaskPatch{}, err
		}
		out.Status = Some(status)
	}
	if p.Completed.Set {
		if p.Completed.Null {
			return TaskPatch{}, apperror.InvalidInput("completed cannot be null")
		}
		completed := p.Completed.Value
		switch {
		case out.Status.Set:
			if completed != (out.Status.Value == StatusCompleted) {
				return TaskPatch{}, apperror.InvalidInput("status and completed disagree")
			}
		case completed:
			out.Status = Some(StatusCompleted)
		case current.Status == StatusCompleted:
			out.Status = Some(StatusPending)
		default:
			// already not completed; keep in-progress or pending as is
			out.Status = Some(current.Status)
		}
	}
	return out, nil
}

// Apply writes a resolved patch onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title.Present() {
		t.Title = p.Title.Value
	}
	if p.Description.Set {
		t.Description = p.Description.Value
	}
	if p.DueDate.Set {
		if p.DueDate.Null {
			t.DueDate = nil
		} else {
			due := p.DueDate.Value.Time
			t.DueDate = &due
		}
	}
	if p.Status.Present() {
		t.Status = p.Status.Value
	}
}
