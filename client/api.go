// Package client talks to the task API and keeps the state a task list UI
// needs: the session token, an optimistic task cache and a selection for
// bulk deletes.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/biosecret/go-tasks/apperror"
	"github.com/biosecret/go-tasks/models"
)

// DefaultTimeout bounds every API call.
const DefaultTimeout = 10 * time.Second

// TaskAPI is the task half of the API.
type TaskAPI interface {
	ListTasks(ctx context.Context) ([]models.Task, error)
	CreateTask(ctx context.Context, in models.CreateTaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// AuthAPI is the account half of the API.
type AuthAPI interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	SetToken(token string)
}

// Client is an HTTP client for the task API.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDial replaces the network dialer, e.g. with an in-memory listener.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = dial }
}

// New returns a client for the API rooted at baseURL
// (for example http://localhost:3000/api).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API url %q", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &fasthttp.Client{
			Name:                "taskctl",
			MaxIdleConnDuration: 30 * time.Second,
		},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken sets the bearer token sent with every request. Empty clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := c.do(ctx, fasthttp.MethodPost, "/auth/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := c.do(ctx, fasthttp.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListTasks(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	if err := c.do(ctx, fasthttp.MethodGet, "/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) CreateTask(ctx context.Context, in models.CreateTaskInput) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, fasthttp.MethodPost, "/tasks", in, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask sends only the fields set in patch.
func (c *Client) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, fasthttp.MethodPut, "/tasks/"+url.PathEscape(id), patch, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, fasthttp.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

// do performs one request. In-flight requests are not aborted when ctx is
// done; their result is discarded and ctx.Err() returned instead.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if token := c.bearer(); token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
	}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(payload)
	}

	err := c.http.DoTimeout(req, resp, c.timeout)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return transportError(err)
	}

	if status := resp.StatusCode(); status >= fasthttp.StatusBadRequest {
		return responseError(status, resp.Body())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return apperror.Internal("decode response", err)
	}
	return nil
}

func transportError(err error) error {
	if errors.Is(err, fasthttp.ErrTimeout) {
		return apperror.Wrap(apperror.KindTimeout, "Request timed out. Please check your connection.", err)
	}
	return apperror.Wrap(apperror.KindNetworkUnreachable, "Network error. Please check your connection.", err)
}

// responseError prefers the kind and message the server put in the body.
func responseError(status int, body []byte) error {
	kind := apperror.KindFromStatus(status)
	message := fmt.Sprintf("Request failed with status %d", status)

	var payload models.ErrorResponse
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			if parsed := apperror.ParseKind(payload.Error); parsed != apperror.KindInternal || payload.Error == apperror.KindInternal.String() {
				kind = parsed
			}
		}
		if payload.Message != "" {
			message = payload.Message
		}
	}
	return apperror.New(kind, message)
}
