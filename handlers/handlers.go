package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/biosecret/go-tasks/apperror"
	"github.com/biosecret/go-tasks/cache"
	"github.com/biosecret/go-tasks/models"
)

// Authenticator is the part of the auth service the HTTP layer calls.
type Authenticator interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
}

// TaskManager is the ownership-checked task API.
type TaskManager interface {
	List(ctx context.Context, userID string) ([]models.Task, error)
	Get(ctx context.Context, userID, id string) (*models.Task, error)
	Create(ctx context.Context, userID string, in models.CreateTaskInput) (*models.Task, error)
	Update(ctx context.Context, userID, id string, patch models.TaskPatch) (*models.Task, error)
	Delete(ctx context.Context, userID, id string) error
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheHealth is the task list cache as reported by /health.
type CacheHealth interface {
	Pinger
	Stats() cache.StatsSnapshot
}

// Handlers holds the dependencies of every HTTP handler.
type Handlers struct {
	auth  Authenticator
	tasks TaskManager
	db    Pinger
	cache CacheHealth
}

type Option func(*Handlers)

// WithCache adds the list cache to the health report.
func WithCache(c CacheHealth) Option {
	return func(h *Handlers) { h.cache = c }
}

func New(auth Authenticator, tasks TaskManager, db Pinger, opts ...Option) *Handlers {
	h := &Handlers{auth: auth, tasks: tasks, db: db}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// parseBody decodes the JSON body into out. Decoding errors become
// InvalidInput unless the decoder already classified them.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperror.Wrap(apperror.KindInvalidInput, "Invalid request body", err)
	}
	return nil
}

// ErrorHandler turns handler errors into {"error","message"} replies.
// Internal causes are logged and never sent to the client.
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(models.ErrorResponse{
				Error:   apperror.KindFromStatus(fiberErr.Code).String(),
				Message: fiberErr.Message,
			})
		}

		kind := apperror.KindOf(err)
		if kind == apperror.KindInternal {
			log.Error().Err(err).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Msg("request failed")
		}
		return c.Status(kind.HTTPStatus()).JSON(models.ErrorResponse{
			Error:   kind.String(),
			Message: apperror.MessageOf(err),
		})
	}
}
