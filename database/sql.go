package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver "pgx"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/biosecret/go-tasks/apperror"
	"github.com/biosecret/go-tasks/models"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id VARCHAR(36) PRIMARY KEY,
		owner_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		due_date BIGINT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_owner_created ON tasks (owner_id, created_at)`,
}

// SQLStore persists users and tasks in PostgreSQL (pgx or lib/pq) or SQLite.
type SQLStore struct {
	db *sqlx.DB
}

// OpenSQL opens the database, checks the connection and creates the tables
// if they do not exist yet.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if driver == "sqlite" {
		// one writer at a time; extra connections would only hit SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot connect to %s: %w", driver, err)
	}

	s := &SQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLStore) createTables(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type userRow struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (r userRow) toModel() *models.User {
	return &models.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    fromMillis(r.CreatedAt),
		UpdatedAt:    fromMillis(r.UpdatedAt),
	}
}

type taskRow struct {
	ID          string        `db:"id"`
	OwnerID     string        `db:"owner_id"`
	Title       string        `db:"title"`
	Description string        `db:"description"`
	Status      string        `db:"status"`
	DueDate     sql.NullInt64 `db:"due_date"`
	CreatedAt   int64         `db:"created_at"`
	UpdatedAt   int64         `db:"updated_at"`
}

func (r taskRow) toModel() models.Task {
	task := models.Task{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Description: r.Description,
		Status:      models.Status(r.Status),
		CreatedAt:   fromMillis(r.CreatedAt),
		UpdatedAt:   fromMillis(r.UpdatedAt),
	}
	if r.DueDate.Valid {
		due := fromMillis(r.DueDate.Int64)
		task.DueDate = &due
	}
	return task
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: millis(*t), Valid: true}
}

const taskColumns = `id, owner_id, title, description, status, due_date, created_at, updated_at`

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	query := s.db.Rebind(`INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, millis(user.CreatedAt), millis(user.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.New(apperror.KindConflict, "User already exists")
		}
		return apperror.Internal("insert user", err)
	}
	return nil
}

func (s *SQLStore) UserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, `SELECT * FROM users WHERE id = ?`, id)
}

func (s *SQLStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `SELECT * FROM users WHERE email = ?`, email)
}

func (s *SQLStore) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user")
		}
		return nil, apperror.Internal("select user", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) CreateTask(ctx context.Context, task *models.Task) error {
	query := s.db.Rebind(`INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		task.ID, task.OwnerID, task.Title, task.Description, string(task.Status),
		nullMillis(task.DueDate), millis(task.CreatedAt), millis(task.UpdatedAt))
	if err != nil {
		return apperror.Internal("insert task", err)
	}
	return nil
}

func (s *SQLStore) TaskByID(ctx context.Context, id string) (*models.Task, error) {
	var row taskRow
	query := s.db.Rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("task")
		}
		return nil, apperror.Internal("select task", err)
	}
	task := row.toModel()
	return &task, nil
}

func (s *SQLStore) TasksByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	var rows []taskRow
	query := s.db.Rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ? ORDER BY created_at, id`)
	if err := s.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, apperror.Internal("select tasks", err)
	}

	tasks := make([]models.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toModel())
	}
	return tasks, nil
}

// UpdateTask writes only the columns present in the resolved patch.
func (s *SQLStore) UpdateTask(ctx context.Context, ownerID, id string, patch models.TaskPatch, updatedAt time.Time) (*models.Task, error) {
	sets := []string{"updated_at = ?"}
	args := []any{millis(updatedAt)}

	if patch.Title.Present() {
		sets = append(sets, "title = ?")
		args = append(args, patch.Title.Value)
	}
	if patch.Description.Set {
		sets = append(sets, "description = ?")
		args = append(args, patch.Description.Value)
	}
	if patch.DueDate.Set {
		var due *time.Time
		if !patch.DueDate.Null {
			due = &patch.DueDate.Value.Time
		}
		sets = append(sets, "due_date = ?")
		args = append(args, nullMillis(due))
	}
	if patch.Status.Present() {
		sets = append(sets, "status = ?")
		args = append(args, string(patch.Status.Value))
	}
	args = append(args, id, ownerID)

	query := s.db.Rebind(`UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND owner_id = ?`)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperror.Internal("update task", err)
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	return s.TaskByID(ctx, id)
}

func (s *SQLStore) DeleteTask(ctx context.Context, ownerID, id string) error {
	query := s.db.Rebind(`DELETE FROM tasks WHERE id = ? AND owner_id = ?`)
	res, err := s.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return apperror.Internal("delete task", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	count, err := res.RowsAffected()
	if err != nil {
		return apperror.Internal("rows affected", err)
	}
	if count == 0 {
		return apperror.NotFound("task")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
