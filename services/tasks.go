package services

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/biosecret/go-tasks/apperror"
	"github.com/biosecret/go-tasks/events"
	"github.com/biosecret/go-tasks/models"
	"github.com/biosecret/go-tasks/utils"
)

// TaskStore is the task persistence the service needs.
type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
	TaskByID(ctx context.Context, id string) (*models.Task, error)
	TasksByOwner(ctx context.Context, ownerID string) ([]models.Task, error)
	UpdateTask(ctx context.Context, ownerID, id string, patch models.TaskPatch, updatedAt time.Time) (*models.Task, error)
	DeleteTask(ctx context.Context, ownerID, id string) error
}

// ListCache caches whole per-owner task lists. GetTasks reports the
// owner's generation, and SetTasks must not store a list read under a
// generation that Invalidate has since moved past.
type ListCache interface {
	GetTasks(ctx context.Context, ownerID string) (tasks []models.Task, generation uint64, hit bool, err error)
	SetTasks(ctx context.Context, ownerID string, generation uint64, tasks []models.Task) error
	Invalidate(ctx context.Context, ownerID string) error
}

// TaskService exposes ownership-checked CRUD over a TaskStore.
type TaskService struct {
	store     TaskStore
	cache     ListCache
	publisher events.Publisher
	log       zerolog.Logger
	now       func() time.Time

	loads singleflight.Group
}

type TaskOption func(*TaskService)

// WithListCache serves List through c.
func WithListCache(c ListCache) TaskOption {
	return func(s *TaskService) { s.cache = c }
}

// WithPublisher publishes an event for every mutation.
func WithPublisher(p events.Publisher) TaskOption {
	return func(s *TaskService) { s.publisher = p }
}

func WithLogger(log zerolog.Logger) TaskOption {
	return func(s *TaskService) { s.log = log }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) TaskOption {
	return func(s *TaskService) { s.now = now }
}

func NewTaskService(store TaskStore, opts ...TaskOption) *TaskService {
	s := &TaskService{
		store:     store,
		publisher: events.Nop{},
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// List returns the user's tasks in creation order.
func (s *TaskService) List(ctx context.Context, userID string) ([]models.Task, error) {
	fill := false
	var generation uint64
	if s.cache != nil {
		tasks, gen, hit, err := s.cache.GetTasks(ctx, userID)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("owner_id", userID).Msg("task cache read failed")
		case hit:
			return tasks, nil
		default:
			fill, generation = true, gen
		}
	}

	// changed() forgets the key, so a List issued after a mutation never
	// joins a load that started before it
	v, err, _ := s.loads.Do(userID, func() (any, error) {
		tasks, err := s.store.TasksByOwner(ctx, userID)
		if err != nil {
			return nil, err
		}
		if fill {
			if err := s.cache.SetTasks(ctx, userID, generation, tasks); err != nil {
				s.log.Warn().Err(err).Str("owner_id", userID).Msg("task cache write failed")
			}
		}
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}
	// callers sharing a flight must not share the backing array
	return slices.Clone(v.([]models.Task)), nil
}

// Get returns one task. NotFound if it does not exist, Forbidden if it
// belongs to someone else.
func (s *TaskService) Get(ctx context.Context, userID, id string) (*models.Task, error) {
	return s.owned(ctx, userID, id)
}

func (s *TaskService) owned(ctx context.Context, userID, id string) (*models.Task, error) {
	if !utils.IsID(id) {
		return nil, apperror.NotFound("Task")
	}
	task, err := s.store.TaskByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.OwnerID != userID {
		return nil, apperror.New(apperror.KindForbidden, "Not authorized to access this task")
	}
	return task, nil
}

// Create persists a new task owned by userID.
func (s *TaskService) Create(ctx context.Context, userID string, in models.CreateTaskInput) (*models.Task, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	task := &models.Task{
		ID:          utils.NewID(),
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		OwnerID:     userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.DueDate != nil {
		due := in.DueDate.Time.UTC().Truncate(time.Millisecond)
		task.DueDate = &due
	}

	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	s.changed(ctx, events.TaskCreated, task.ID, userID, task)
	return task, nil
}

// Update applies the fields present in patch. Absent fields are left
// untouched; explicit falsy values are written.
func (s *TaskService) Update(ctx context.Context, userID, id string, patch models.TaskPatch) (*models.Task, error) {
	current, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	resolved, err := patch.Resolve(*current)
	if err != nil {
		return nil, err
	}

	task, err := s.store.UpdateTask(ctx, userID, id, resolved, s.timestamp())
	if err != nil {
		return nil, err
	}
	s.changed(ctx, events.TaskUpdated, id, userID, task)
	return task, nil
}

// Delete removes a task. A second delete of the same id reports NotFound.
func (s *TaskService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, userID, id); err != nil {
		return err
	}
	s.changed(ctx, events.TaskDeleted, id, userID, nil)
	return nil
}

// changed invalidates the owner's cached list and publishes an event.
// Neither failure fails the request.
func (s *TaskService) changed(ctx context.Context, typ events.Type, taskID, ownerID string, task *models.Task) {
	s.loads.Forget(ownerID)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, ownerID); err != nil {
			s.log.Error().Err(err).Str("owner_id", ownerID).Msg("task cache invalidation failed")
		}
	}

	event := events.TaskEvent{
		Type:       typ,
		TaskID:     taskID,
		OwnerID:    ownerID,
		Task:       task,
		OccurredAt: s.timestamp(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("task_id", taskID).Str("event", string(typ)).Msg("task event not published")
	}
}
