package database

import (
	"context"
	"fmt"
	"time"

	"github.com/biosecret/go-tasks/config"
	"github.com/biosecret/go-tasks/models"
)

// Store is the persistence surface the server needs: users, tasks and
// lifecycle hooks. Ownership is part of every task mutation's filter so a
// write can never land on another user's document.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateTask(ctx context.Context, task *models.Task) error
	TaskByID(ctx context.Context, id string) (*models.Task, error)
	TasksByOwner(ctx context.Context, ownerID string) ([]models.Task, error)
	UpdateTask(ctx context.Context, ownerID, id string, patch models.TaskPatch, updatedAt time.Time) (*models.Task, error)
	DeleteTask(ctx context.Context, ownerID, id string) error

	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "mongo":
		return OpenMongo(ctx, cfg.URL, cfg.MongoDatabase)
	case "pgx", "postgres", "sqlite":
		return OpenSQL(ctx, cfg.Driver, cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// millis and fromMillis keep timestamps portable across dialects.
func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
