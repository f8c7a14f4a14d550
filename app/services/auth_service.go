package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"biostar/app/models"
	"biostar/app/repositories"
)

// DefaultSessionTTL is the lifetime of a login session.
const DefaultSessionTTL = 14 * 24 * time.Hour

// AuthService registers users and manages login sessions.
type AuthService struct {
	userRepo    repositories.UserRepository
	sessionRepo repositories.SessionRepository
	ttl         time.Duration
	now         func() time.Time
}

func NewAuthService(userRepo repositories.UserRepository, sessionRepo repositories.SessionRepository, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &AuthService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		ttl:         ttl,
		now:         time.Now,
	}
}

// Register creates an account from a signup form. A taken username is
// reported as a form error.
func (s *AuthService) Register(form *models.SignupForm) (*models.User, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	user, err := s.CreateUser(form.Username, form.Email, form.Password, false)
	if errors.Is(err, repositories.ErrDuplicate) {
		form.Errors["username"] = "username is already taken"
		return nil, models.ErrInvalidForm
	}
	return user, err
}

// CreateUser stores a new user with a hashed password.
func (s *AuthService) CreateUser(username, email, password string, moderator bool) (*models.User, error) {
	user := &models.User{
		Username:    username,
		Email:       email,
		IsModerator: moderator,
		CreatedAt:   s.now(),
	}
	if err := user.SetPassword(password); err != nil {
		return nil, err
	}
	user.BeforeCreate()
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("invalid user: %w", err)
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks the credentials and opens a session.
func (s *AuthService) Login(form *models.LoginForm) (*models.Session, *models.User, error) {
	if err := form.Validate(); err != nil {
		return nil, nil, err
	}

	user, err := s.userRepo.GetByUsername(form.Username)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, err
	}
	if !user.CheckPassword(form.Password) {
		form.Errors["__all__"] = ErrInvalidCredentials.Error()
		return nil, nil, ErrInvalidCredentials
	}

	token, err := newSessionToken()
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	session := &models.Session{
		Token:     token,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, user, nil
}

// Logout ends the session. Unknown tokens are not an error.
func (s *AuthService) Logout(token string) error {
	if token == "" {
		return nil
	}
	return s.sessionRepo.Delete(token)
}

// Authenticate returns the user owning a live session, or nil for anonymous visitors.
func (s *AuthService) Authenticate(token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	session, err := s.sessionRepo.Get(token)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now()) {
		return nil, nil
	}
	user, err := s.userRepo.GetByID(session.UserID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
