package client

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/biosecret/go-tasks/models"
)

// TokenStore persists the bearer token between runs.
type TokenStore interface {
	// Load returns "" and no error when nothing is stored.
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FileTokenStore keeps the token in a file only the current user can read.
type FileTokenStore struct {
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// DefaultTokenPath is <user config dir>/go-tasks/token.
func DefaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "go-tasks", "token"), nil
}

func (s *FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

func (s *FileTokenStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// MemoryTokenStore keeps the token in memory only.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func (s *MemoryTokenStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryTokenStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	return s.Save("")
}

// Session is the authentication state of one client. The user is
// authenticated exactly when a token is held.
type Session struct {
	api   AuthAPI
	store TokenStore

	mu    sync.RWMutex
	token string
	user  *models.UserView
}

func NewSession(api AuthAPI, store TokenStore) *Session {
	return &Session{api: api, store: store}
}

// Init restores a stored token, if any.
func (s *Session) Init() error {
	token, err := s.store.Load()
	if err != nil {
		return err
	}
	s.set(token, nil)
	return nil
}

func (s *Session) Login(ctx context.Context, email, password string) (*models.UserView, error) {
	resp, err := s.api.Login(ctx, models.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	return s.adopt(resp)
}

func (s *Session) Register(ctx context.Context, name, email, password string) (*models.UserView, error) {
	resp, err := s.api.Register(ctx, models.RegisterRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	return s.adopt(resp)
}

// Logout forgets the token locally; tokens are not revoked server side.
func (s *Session) Logout() error {
	s.set("", nil)
	return s.store.Clear()
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// User is known only after Login or Register in this process.
func (s *Session) User() *models.UserView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) adopt(resp *models.AuthResponse) (*models.UserView, error) {
	if err := s.store.Save(resp.Token); err != nil {
		return nil, err
	}
	user := resp.User
	s.set(resp.Token, &user)
	return &user, nil
}

func (s *Session) set(token string, user *models.UserView) {
	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()
	s.api.SetToken(token)
}
