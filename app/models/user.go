package models

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced on signup.
const MinPasswordLength = 8

// Validate checks if the user meets all validation requirements
func (u *User) Validate() error {
	return validate.Struct(u)
}

// BeforeCreate sets up any necessary fields before creation
func (u *User) BeforeCreate() {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if u.Name == "" {
		u.Name = u.Username
	}
}

// SetPassword stores a bcrypt hash of password.
func (u *User) SetPassword(password string) error {
	if len(password) < MinPasswordLength {
		return errors.New("password is too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	if u == nil || u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// IsAuthenticated is false for the nil (anonymous) user.
func (u *User) IsAuthenticated() bool {
	return u != nil && u.ID > 0
}

// CanModerate is false for the nil (anonymous) user.
func (u *User) CanModerate() bool {
	return u.IsAuthenticated() && u.IsModerator
}

// Expired reports whether the session is past its expiry time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
