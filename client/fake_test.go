package client

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/biosecret/go-tasks/apperror"
	"github.com/biosecret/go-tasks/models"
)

// fakeAPI is an in-memory TaskAPI standing in for the server.
type fakeAPI struct {
	mu         sync.Mutex
	tasks      []models.Task
	listCalls  int
	updateErr  error
	updateGate chan struct{}
	patches    []models.TaskPatch
	deleteErrs map[string]error
	deleted    []string
}

func newFakeAPI(tasks ...models.Task) *fakeAPI {
	return &fakeAPI{tasks: tasks, deleteErrs: map[string]error{}}
}

func task(id, title string, status models.Status) models.Task {
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return models.Task{ID: id, Title: title, Status: status, OwnerID: "u1", CreatedAt: created, UpdatedAt: created}
}

func (f *fakeAPI) ListTasks(context.Context) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return slices.Clone(f.tasks), nil
}

func (f *fakeAPI) CreateTask(_ context.Context, in models.CreateTaskInput) (*models.Task, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := task("new-"+in.Title, in.Title, in.Status)
	f.tasks = append(f.tasks, t)
	return &t, nil
}

func (f *fakeAPI) UpdateTask(_ context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	if f.updateGate != nil {
		<-f.updateGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	i := slices.IndexFunc(f.tasks, func(t models.Task) bool { return t.ID == id })
	if i < 0 {
		return nil, apperror.NotFound("Task")
	}
	resolved, err := patch.Resolve(f.tasks[i])
	if err != nil {
		return nil, err
	}
	resolved.Apply(&f.tasks[i])
	updated := f.tasks[i]
	return &updated, nil
}

func (f *fakeAPI) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.deleteErrs[id]; ok {
		return err
	}
	i := slices.IndexFunc(f.tasks, func(t models.Task) bool { return t.ID == id })
	if i < 0 {
		return apperror.NotFound("Task")
	}
	f.tasks = slices.Delete(f.tasks, i, i+1)
	f.deleted = append(f.deleted, id)
	return nil
}

// serverTask reads a task directly from the fake server's state.
func (f *fakeAPI) serverTask(id string) (models.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.IndexFunc(f.tasks, func(t models.Task) bool { return t.ID == id })
	if i < 0 {
		return models.Task{}, false
	}
	return f.tasks[i], true
}

func (f *fakeAPI) lists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}
