package models

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validator exposes the shared validator so forms outside this package use the same rules.
func Validator() *validator.Validate {
	return validate
}

// NewUID returns a random hex identifier of at most limit characters.
func NewUID(limit int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if limit > 0 && limit < len(id) {
		return id[:limit]
	}
	return id
}
