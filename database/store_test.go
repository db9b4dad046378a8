package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biosecret/go-tasks/apperror"
	"github.com/biosecret/go-tasks/models"
	"github.com/biosecret/go-tasks/utils"
)

// openTestStores returns the SQLite store plus any server-backed store whose
// connection string is present in the environment.
func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	stores := map[string]Store{}

	lite, err := OpenSQL(ctx, "sqlite", filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { lite.Close() })
	stores["sqlite"] = lite

	if dsn := os.Getenv("TEST_POSTGRES_URL"); dsn != "" {
		pg, err := OpenSQL(ctx, "pgx", dsn)
		require.NoError(t, err)
		t.Cleanup(func() { pg.Close() })
		stores["pgx"] = pg
	}
	if uri := os.Getenv("TEST_MONGO_URL"); uri != "" {
		mg, err := OpenMongo(ctx, uri, "tasks_test_"+utils.NewID()[:8])
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = mg.tasks.Database().Drop(context.Background())
			mg.Close()
		})
		stores["mongo"] = mg
	}
	return stores
}

func newUser(t *testing.T, store Store, email string) *models.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	user := &models.User{
		ID:           utils.NewID(),
		Name:         "Test",
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

func newTask(t *testing.T, store Store, ownerID, title string) *models.Task {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	task := &models.Task{
		ID:        utils.NewID(),
		OwnerID:   ownerID,
		Title:     title,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateTask(context.Background(), task))
	return task
}

func TestStore_Users(t *testing.T) {
	for name, store := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user := newUser(t, store, "alice-"+name+"@x.com")

			byEmail, err := store.UserByEmail(ctx, user.Email)
			require.NoError(t, err)
			assert.Equal(t, user.ID, byEmail.ID)
			assert.Equal(t, "hash", byEmail.PasswordHash)

			byID, err := store.UserByID(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, user.Email, byID.Email)
			assert.True(t, user.CreatedAt.Equal(byID.CreatedAt))

			dup := *user
			dup.ID = utils.NewID()
			err = store.CreateUser(ctx, &dup)
			assert.True(t, apperror.Is(err, apperror.KindConflict), "got %v", err)

			_, err = store.UserByEmail(ctx, "nobody@x.com")
			assert.True(t, apperror.Is(err, apperror.KindNotFound))
		})
	}
}

func TestStore_TaskLifecycle(t *testing.T) {
	for name, store := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			owner := newUser(t, store, "owner-"+name+"@x.com")
			other := newUser(t, store, "other-"+name+"@x.com")

			first := newTask(t, store, owner.ID, "first")
			second := newTask(t, store, owner.ID, "second")
			newTask(t, store, other.ID, "not mine")

			tasks, err := store.TasksByOwner(ctx, owner.ID)
			require.NoError(t, err)
			require.Len(t, tasks, 2)
			assert.ElementsMatch(t, []string{first.ID, second.ID}, []string{tasks[0].ID, tasks[1].ID})

			due := models.Date{Time: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
			later := first.UpdatedAt.Add(time.Second)
			updated, err := store.UpdateTask(ctx, owner.ID, first.ID, models.TaskPatch{
				Description: models.Some("details"),
				DueDate:     models.Some(due),
				Status:      models.Some(models.StatusCompleted),
			}, later)
			require.NoError(t, err)
			assert.Equal(t, "first", updated.Title, "unmasked field unchanged")
			assert.Equal(t, "details", updated.Description)
			assert.Equal(t, models.StatusCompleted, updated.Status)
			require.NotNil(t, updated.DueDate)
			assert.True(t, due.Time.Equal(*updated.DueDate))
			assert.True(t, later.Equal(updated.UpdatedAt))

			cleared, err := store.UpdateTask(ctx, owner.ID, first.ID, models.TaskPatch{DueDate: models.Null[models.Date]()}, later)
			require.NoError(t, err)
			assert.Nil(t, cleared.DueDate)
			assert.Equal(t, "details", cleared.Description)

			_, err = store.UpdateTask(ctx, other.ID, first.ID, models.TaskPatch{Title: models.Some("hijack")}, later)
			assert.True(t, apperror.Is(err, apperror.KindNotFound), "owner filter applies to updates")

			err = store.DeleteTask(ctx, other.ID, first.ID)
			assert.True(t, apperror.Is(err, apperror.KindNotFound), "owner filter applies to deletes")

			require.NoError(t, store.DeleteTask(ctx, owner.ID, first.ID))
			err = store.DeleteTask(ctx, owner.ID, first.ID)
			assert.True(t, apperror.Is(err, apperror.KindNotFound))

			_, err = store.TaskByID(ctx, first.ID)
			assert.True(t, apperror.Is(err, apperror.KindNotFound))

			still, err := store.TaskByID(ctx, second.ID)
			require.NoError(t, err)
			assert.Equal(t, "second", still.Title)
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := OpenSQL(context.Background(), "nope", "x")
	assert.Error(t, err)
}
