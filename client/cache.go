package client

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/biosecret/go-tasks/apperror"
	"github.com/biosecret/go-tasks/models"
)

// MutationState tracks one optimistic change.
type MutationState int

const (
	// MutationApplied: changed locally, server answer pending.
	MutationApplied MutationState = iota
	// MutationConfirmed: the server accepted the change.
	MutationConfirmed
	// MutationReverted: the server rejected it and the cache was reloaded.
	MutationReverted
)

func (s MutationState) String() string {
	switch s {
	case MutationApplied:
		return "applied"
	case MutationConfirmed:
		return "confirmed"
	case MutationReverted:
		return "reverted"
	}
	return fmt.Sprintf("MutationState(%d)", int(s))
}

// Mutation is the outcome of ToggleCompletion. Once the call returns its
// State is never MutationApplied.
type Mutation struct {
	TaskID    string
	Completed bool
	State     MutationState
	Err       error
}

// TaskCache is the client's copy of the task list. Every method is safe for
// concurrent use.
type TaskCache struct {
	api TaskAPI

	mu    sync.Mutex
	tasks []models.Task
}

func NewTaskCache(api TaskAPI) *TaskCache {
	return &TaskCache{api: api}
}

// Refresh reloads the whole list from the server. The cache is unchanged if
// the reload fails.
func (c *TaskCache) Refresh(ctx context.Context) ([]models.Task, error) {
	tasks, err := c.api.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tasks = slices.Clone(tasks)
	c.mu.Unlock()
	return tasks, nil
}

// Tasks returns a copy of the cached list.
func (c *TaskCache) Tasks() []models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.tasks)
}

func (c *TaskCache) Task(id string) (models.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.index(id); i >= 0 {
		return c.tasks[i], true
	}
	return models.Task{}, false
}

func (c *TaskCache) index(id string) int {
	return slices.IndexFunc(c.tasks, func(t models.Task) bool { return t.ID == id })
}

// ToggleCompletion flips the task's completion locally, then sends only
// that field. On failure the cache is reloaded from the server rather than
// rolled back field by field, and the original error is returned.
func (c *TaskCache) ToggleCompletion(ctx context.Context, id string) (Mutation, error) {
	c.mu.Lock()
	i := c.index(id)
	if i < 0 {
		c.mu.Unlock()
		return Mutation{TaskID: id, State: MutationReverted}, apperror.NotFound("Task")
	}
	completed := !c.tasks[i].Completed()
	c.tasks[i].Status = models.StatusFromCompleted(completed)
	c.mu.Unlock()

	m := Mutation{TaskID: id, Completed: completed, State: MutationApplied}

	updated, err := c.api.UpdateTask(ctx, id, models.TaskPatch{Completed: models.Some(completed)})
	if err != nil {
		m.State = MutationReverted
		m.Err = err
		// reconcile even if the caller has given up on ctx
		_, _ = c.Refresh(context.WithoutCancel(ctx))
		return m, err
	}

	c.mu.Lock()
	if i := c.index(id); i >= 0 {
		c.tasks[i] = *updated
	}
	c.mu.Unlock()

	m.State = MutationConfirmed
	return m, nil
}

// ApplyEdit sends the edit and then reloads the list. Nothing is merged
// locally.
func (c *TaskCache) ApplyEdit(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	updated, err := c.api.UpdateTask(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if _, err := c.Refresh(ctx); err != nil {
		return updated, fmt.Errorf("task saved but reload failed: %w", err)
	}
	return updated, nil
}

// Create sends a new task and then reloads the list.
func (c *TaskCache) Create(ctx context.Context, in models.CreateTaskInput) (*models.Task, error) {
	created, err := c.api.CreateTask(ctx, in)
	if err != nil {
		return nil, err
	}
	if _, err := c.Refresh(ctx); err != nil {
		return created, fmt.Errorf("task created but reload failed: %w", err)
	}
	return created, nil
}

// Remove drops every listed id in a single step.
func (c *TaskCache) Remove(ids ...string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	c.mu.Lock()
	c.tasks = slices.DeleteFunc(c.tasks, func(t models.Task) bool {
		_, ok := drop[t.ID]
		return ok
	})
	c.mu.Unlock()
}
