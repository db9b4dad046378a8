package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/biosecret/go-tasks/apperror"
	"github.com/biosecret/go-tasks/database"
	"github.com/biosecret/go-tasks/events"
	"github.com/biosecret/go-tasks/models"
	"github.com/biosecret/go-tasks/utils"
)

func openStore(t *testing.T) *database.SQLStore {
	t.Helper()
	store, err := database.OpenSQL(context.Background(), "sqlite", filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newAuth(store UserStore) *AuthService {
	return NewAuthService(store, NewTokenManager("test-secret", time.Hour, "go-tasks-test"), bcrypt.MinCost)
}

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()
	auth := newAuth(openStore(t))

	resp, err := auth.Register(ctx, models.RegisterRequest{Name: " Alice ", Email: "Alice@X.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "Alice", resp.User.Name)
	assert.Equal(t, "alice@x.com", resp.User.Email)

	user, err := auth.Verify(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, user.ID)

	_, err = auth.Register(ctx, models.RegisterRequest{Name: "Alice", Email: "alice@x.com ", Password: "secret1"})
	assert.True(t, apperror.Is(err, apperror.KindConflict), "got %v", err)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	auth := newAuth(openStore(t))

	tests := []struct {
		name string
		req  models.RegisterRequest
	}{
		{"missing name", models.RegisterRequest{Email: "a@x.com", Password: "secret1"}},
		{"blank name", models.RegisterRequest{Name: "  ", Email: "a@x.com", Password: "secret1"}},
		{"missing email", models.RegisterRequest{Name: "A", Password: "secret1"}},
		{"missing password", models.RegisterRequest{Name: "A", Email: "a@x.com"}},
		{"bad email", models.RegisterRequest{Name: "A", Email: "not-an-email", Password: "secret1"}},
		{"display name form", models.RegisterRequest{Name: "A", Email: "Alice <alice@x.com>", Password: "secret1"}},
		{"short password", models.RegisterRequest{Name: "A", Email: "a@x.com", Password: "12345"}},
		{"long password", models.RegisterRequest{Name: "A", Email: "a@x.com", Password: string(make([]byte, 73))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Register(context.Background(), tt.req)
			assert.True(t, apperror.Is(err, apperror.KindInvalidInput), "got %v", err)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	auth := newAuth(openStore(t))

	registered, err := auth.Register(ctx, models.RegisterRequest{Name: "Alice", Email: "alice@x.com", Password: "secret1"})
	require.NoError(t, err)

	resp, err := auth.Login(ctx, models.LoginRequest{Email: "ALICE@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, registered.User, resp.User)
	assert.NotEmpty(t, resp.Token)

	_, wrongPassword := auth.Login(ctx, models.LoginRequest{Email: "alice@x.com", Password: "secret2"})
	_, unknownEmail := auth.Login(ctx, models.LoginRequest{Email: "bob@x.com", Password: "secret1"})
	assert.True(t, apperror.Is(wrongPassword, apperror.KindInvalidCredentials))
	assert.True(t, apperror.Is(unknownEmail, apperror.KindInvalidCredentials))
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())

	_, err = auth.Login(ctx, models.LoginRequest{Email: "alice@x.com"})
	assert.True(t, apperror.Is(err, apperror.KindInvalidInput))
}

func TestAuthService_VerifyRejects(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	auth := newAuth(store)

	resp, err := auth.Register(ctx, models.RegisterRequest{Name: "Alice", Email: "alice@x.com", Password: "secret1"})
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := auth.Verify(ctx, "not.a.token")
		assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager("other-secret", time.Hour, "go-tasks-test")
		token, err := other.Generate(resp.User.ID)
		require.NoError(t, err)
		_, err = auth.Verify(ctx, token)
		assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
	})

	t.Run("expired", func(t *testing.T) {
		tokens := NewTokenManager("test-secret", time.Hour, "go-tasks-test")
		tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := tokens.Generate(resp.User.ID)
		require.NoError(t, err)
		_, err = auth.Verify(ctx, token)
		assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
	})

	t.Run("unknown user", func(t *testing.T) {
		token, err := auth.tokens.Generate(utils.NewID())
		require.NoError(t, err)
		_, err = auth.Verify(ctx, token)
		assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
	})
}

// memoryListCache is an in-process ListCache with the same generation
// rule as the Redis one.
type memoryListCache struct {
	mu          sync.Mutex
	lists       map[string][]models.Task
	generations map[string]uint64
	hits        int
	staleWrites int
	invalidated []string
}

func newMemoryListCache() *memoryListCache {
	return &memoryListCache{lists: map[string][]models.Task{}, generations: map[string]uint64{}}
}

func (c *memoryListCache) GetTasks(_ context.Context, ownerID string) ([]models.Task, uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tasks, ok := c.lists[ownerID]
	if ok {
		c.hits++
	}
	return tasks, c.generations[ownerID], ok, nil
}

func (c *memoryListCache) SetTasks(_ context.Context, ownerID string, generation uint64, tasks []models.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[ownerID] != generation {
		c.staleWrites++
		return nil
	}
	c.lists[ownerID] = tasks
	return nil
}

func (c *memoryListCache) Invalidate(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[ownerID]++
	delete(c.lists, ownerID)
	c.invalidated = append(c.invalidated, ownerID)
	return nil
}

// heldListStore reads the list from the store, then holds the first
// TasksByOwner call open until release is closed.
type heldListStore struct {
	*database.SQLStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newHeldListStore(store *database.SQLStore) *heldListStore {
	return &heldListStore{SQLStore: store, entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *heldListStore) TasksByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	tasks, err := s.SQLStore.TasksByOwner(ctx, ownerID)
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return tasks, err
}

type taskFixture struct {
	store  *database.SQLStore
	svc    *TaskService
	events *events.Recorder
	cache  *memoryListCache
	alice  string
	bob    string
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	store := openStore(t)
	auth := newAuth(store)
	ctx := context.Background()

	alice, err := auth.Register(ctx, models.RegisterRequest{Name: "Alice", Email: "alice@x.com", Password: "secret1"})
	require.NoError(t, err)
	bob, err := auth.Register(ctx, models.RegisterRequest{Name: "Bob", Email: "bob@x.com", Password: "secret1"})
	require.NoError(t, err)

	rec := &events.Recorder{}
	cache := newMemoryListCache()
	svc := NewTaskService(store,
		WithListCache(cache),
		WithPublisher(rec),
		WithClock(stepClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))),
	)
	return &taskFixture{store: store, svc: svc, events: rec, cache: cache, alice: alice.User.ID, bob: bob.User.ID}
}

func TestTaskService_Create(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	task, err := f.svc.Create(ctx, f.alice, models.CreateTaskInput{Title: "  Buy milk "})
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", task.Title)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.False(t, task.Completed())
	assert.Equal(t, f.alice, task.OwnerID)
	assert.Nil(t, task.DueDate)

	stored, err := f.store.TaskByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task, stored)

	recorded := f.events.Events()
	require.Len(t, recorded, 1)
	assert.Equal(t, events.TaskCreated, recorded[0].Type)
	assert.Equal(t, f.alice, recorded[0].OwnerID)
	assert.Contains(t, f.cache.invalidated, f.alice)
}

func TestTaskService_CreateRejectsEmptyTitle(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	for _, title := range []string{"", "   "} {
		_, err := f.svc.Create(ctx, f.alice, models.CreateTaskInput{Title: title, Description: "x"})
		assert.True(t, apperror.Is(err, apperror.KindInvalidInput))
	}

	tasks, err := f.store.TasksByOwner(ctx, f.alice)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Empty(t, f.events.Events())
}

func TestTaskService_ListIsScopedToOwner(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.alice, models.CreateTaskInput{Title: "Buy milk"})
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, f.alice, models.CreateTaskInput{Title: "Walk dog"})
	require.NoError(t, err)

	tasks, err := f.svc.List(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, first.ID, tasks[0].ID)
	assert.Equal(t, second.ID, tasks[1].ID)

	bobs, err := f.svc.List(ctx, f.bob)
	require.NoError(t, err)
	assert.Empty(t, bobs)
}

func TestTaskService_ListUsesCache(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.alice, models.CreateTaskInput{Title: "Buy milk"})
	require.NoError(t, err)

	_, err = f.svc.List(ctx, f.alice)
	require.NoError(t, err)
	_, err = f.svc.List(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.hits)

	// a mutation drops the cached list, so the next read sees it
	_, err = f.svc.Create(ctx, f.alice, models.CreateTaskInput{Title: "Walk dog"})
	require.NoError(t, err)
	tasks, err := f.svc.List(ctx, f.alice)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestTaskService_ListAfterCreateDoesNotJoinEarlierLoad(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	store := newHeldListStore(f.store)
	svc := NewTaskService(store)

	before := make(chan []models.Task, 1)
	go func() {
		tasks, _ := svc.List(ctx, f.alice)
		before <- tasks
	}()
	<-store.entered

	_, err := svc.Create(ctx, f.alice, models.CreateTaskInput{Title: "Buy milk"})
	require.NoError(t, err)

	after := make(chan []models.Task, 1)
	go func() {
		tasks, _ := svc.List(ctx, f.alice)
		after <- tasks
	}()

	var tasks []models.Task
	select {
	case tasks = <-after:
	case <-time.After(time.Second):
		// joined the held load; let it finish so the assertion reports it
		close(store.release)
		tasks = <-after
	}
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy milk", tasks[0].Title)

	select {
	case <-store.release:
	default:
		close(store.release)
	}
	assert.Empty(t, <-before)
}

func TestTaskService_StaleLoadDoesNotRefillCache(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	store := newHeldListStore(f.store)
	svc := NewTaskService(store, WithListCache(f.cache))

	before := make(chan []models.Task, 1)
	go func() {
		tasks, _ := svc.List(ctx, f.alice)
		before <- tasks
	}()
	<-store.entered

	_, err := svc.Create(ctx, f.alice, models.CreateTaskInput{Title: "Buy milk"})
	require.NoError(t, err)

	// the load that read before the create now tries to cache its result
	close(store.release)
	assert.Empty(t, <-before)
	assert.Equal(t, 1, f.cache.staleWrites)

	tasks, err := svc.List(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy milk", tasks[0].Title)

	// and the fresh list is what gets cached
	tasks, err = svc.List(ctx, f.alice)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.Equal(t, 1, f.cache.hits)
}

func TestTaskService_CreateDueDateMatchesStore(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	due, err := models.ParseDate("2026-04-01T10:00:00.123456789Z")
	require.NoError(t, err)
	created, err := f.svc.Create(ctx, f.alice, models.CreateTaskInput{Title: "Buy milk", DueDate: &due})
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, f.alice, created.ID)
	require.NoError(t, err)
	require.NotNil(t, created.DueDate)
	assert.Equal(t, time.Date(2026, 4, 1, 10, 0, 0, 123000000, time.UTC), *created.DueDate)
	assert.Equal(t, created.DueDate, stored.DueDate)

	later, err := models.ParseDate("2026-04-02T10:00:00.987654321Z")
	require.NoError(t, err)
	updated, err := f.svc.Update(ctx, f.alice, created.ID, models.TaskPatch{DueDate: models.Some(later)})
	require.NoError(t, err)
	stored, err = f.svc.Get(ctx, f.alice, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.DueDate, stored.DueDate)
}

func TestTaskService_UpdatePartial(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	due, err := models.ParseDate("2026-04-01")
	require.NoError(t, err)
	created, err := f.svc.Create(ctx, f.alice, models.CreateTaskInput{Title: "Buy milk", Description: "2 litres", DueDate: &due})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, f.alice, created.ID, models.TaskPatch{Description: models.Some("oat milk")})
	require.NoError(t, err)
	assert.Equal(t, "oat milk", updated.Description)
	assert.Equal(t, created.Title, updated.Title)
	assert.Equal(t, created.Status, updated.Status)
	require.NotNil(t, updated.DueDate)
	assert.True(t, created.DueDate.Equal(*updated.DueDate))
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
}

func TestTaskService_UpdateHonorsExplicitFalse(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	done := true
	created, err := f.svc.Create(ctx, f.alice, models.CreateTaskInput{Title: "Buy milk", Completed: &done})
	require.NoError(t, err)
	require.True(t, created.Completed())

	updated, err := f.svc.Update(ctx, f.alice, created.ID, models.TaskPatch{Completed: models.Some(false)})
	require.NoError(t, err)
	assert.False(t, updated.Completed())
	assert.Equal(t, models.StatusPending, updated.Status)
}

func TestTaskService_UpdateClearsDueDate(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	due, err := models.ParseDate("2026-04-01")
	require.NoError(t, err)
	created, err := f.svc.Create(ctx, f.alice, models.CreateTaskInput{Title: "Buy milk", DueDate: &due})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, f.alice, created.ID, models.TaskPatch{DueDate: models.Null[models.Date]()})
	require.NoError(t, err)
	assert.Nil(t, updated.DueDate)
}

func TestTaskService_UpdateRejectsEmptyTitle(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.alice, models.CreateTaskInput{Title: "Buy milk"})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.alice, created.ID, models.TaskPatch{Title: models.Some("  ")})
	assert.True(t, apperror.Is(err, apperror.KindInvalidInput))

	stored, err := f.svc.Get(ctx, f.alice, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", stored.Title)
}

func TestTaskService_OwnershipIsEnforced(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	task, err := f.svc.Create(ctx, f.alice, models.CreateTaskInput{Title: "Buy milk"})
	require.NoError(t, err)
	published := len(f.events.Events())

	_, err = f.svc.Get(ctx, f.bob, task.ID)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))

	_, err = f.svc.Update(ctx, f.bob, task.ID, models.TaskPatch{Title: models.Some("Hijacked"), Completed: models.Some(true)})
	assert.True(t, apperror.Is(err, apperror.KindForbidden))

	err = f.svc.Delete(ctx, f.bob, task.ID)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))

	stored, err := f.svc.Get(ctx, f.alice, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task, stored)
	assert.Len(t, f.events.Events(), published)
}

func TestTaskService_MissingTask(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	for _, id := range []string{utils.NewID(), "not-a-uuid", ""} {
		_, err := f.svc.Get(ctx, f.alice, id)
		assert.True(t, apperror.Is(err, apperror.KindNotFound), "get %q: %v", id, err)
		_, err = f.svc.Update(ctx, f.alice, id, models.TaskPatch{Title: models.Some("x")})
		assert.True(t, apperror.Is(err, apperror.KindNotFound), "update %q: %v", id, err)
		err = f.svc.Delete(ctx, f.alice, id)
		assert.True(t, apperror.Is(err, apperror.KindNotFound), "delete %q: %v", id, err)
	}
}

func TestTaskService_DeleteTwice(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	task, err := f.svc.Create(ctx, f.alice, models.CreateTaskInput{Title: "Buy milk"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, f.alice, task.ID))
	err = f.svc.Delete(ctx, f.alice, task.ID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	tasks, err := f.svc.List(ctx, f.alice)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	recorded := f.events.Events()
	assert.Equal(t, events.TaskDeleted, recorded[len(recorded)-1].Type)
}
