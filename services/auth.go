package services

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/biosecret/go-tasks/apperror"
	"github.com/biosecret/go-tasks/models"
	"github.com/biosecret/go-tasks/utils"
)

const (
	minPasswordLength = 6
	// bcrypt ignores everything past 72 bytes
	maxPasswordLength = 72
)

// UserStore is the user persistence the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuthService registers users, logs them in and resolves bearer tokens.
type AuthService struct {
	users      UserStore
	tokens     *TokenManager
	bcryptCost int
	now        func() time.Time

	// dummyHash is compared against when the e-mail is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
}

func NewAuthService(users UserStore, tokens *TokenManager, bcryptCost int) *AuthService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcryptCost)
	return &AuthService{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		now:        time.Now,
		dummyHash:  dummy,
	}
}

// Register creates an account and returns a token for it.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	name := strings.TrimSpace(req.Name)
	email := models.NormalizeEmail(req.Email)
	if name == "" || email == "" || req.Password == "" {
		return nil, apperror.InvalidInput("All fields are required")
	}
	// ParseAddress also accepts "Name <addr>"; only a bare address is stored
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, apperror.InvalidInput("invalid email format")
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperror.InvalidInput("password must be at least %d characters", minPasswordLength)
	}
	if len(req.Password) > maxPasswordLength {
		return nil, apperror.InvalidInput("password must be at most %d characters", maxPasswordLength)
	}

	_, err := s.users.UserByEmail(ctx, email)
	if err == nil {
		return nil, apperror.New(apperror.KindConflict, "User already exists")
	}
	if !apperror.Is(err, apperror.KindNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, apperror.Internal("could not hash password", err)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	user := &models.User{
		ID:           utils.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// the unique index still guards against a concurrent registration
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	return s.respond("User registered successfully", user)
}

// Login checks credentials. Unknown e-mail and wrong password produce the
// same InvalidCredentials error.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	email := models.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperror.InvalidInput("Email and password are required")
	}

	invalid := apperror.New(apperror.KindInvalidCredentials, "Invalid email or password")

	user, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
			return nil, invalid
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, invalid
	}

	return s.respond("Login successful", user)
}

// Verify resolves a bearer token to its user. Tokens of deleted users are
// rejected.
func (s *AuthService) Verify(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.UserByID(ctx, claims.UserID)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return nil, apperror.New(apperror.KindUnauthorized, "Unauthorized access")
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) respond(message string, user *models.User) (*models.AuthResponse, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, apperror.Internal("sign token", err)
	}
	return &models.AuthResponse{
		Message: message,
		Token:   token,
		User:    user.View(),
	}, nil
}
