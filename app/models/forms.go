package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FormErrors maps a form field name to a human readable message.
type FormErrors map[string]string

// Has reports whether field has an error attached.
func (e FormErrors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// AnswerForm is a pending answer submission. ParentUID travels as a hidden field.
type AnswerForm struct {
	ParentUID string `form:"parent_uid" validate:"required,max=32"`
	Content   string `form:"content" validate:"required,min=10,max=10000"`
	Errors    FormErrors
}

// PostForm creates a new top-level post.
type PostForm struct {
	Title   string   `form:"title" validate:"required,min=5,max=200"`
	Type    PostType `form:"type" validate:"gte=0,lte=11"`
	Tags    string   `form:"tags" validate:"max=100"`
	Content string   `form:"content" validate:"required,min=10,max=10000"`
	Errors  FormErrors
}

// LoginForm holds submitted credentials.
type LoginForm struct {
	Username string `form:"username" validate:"required,max=50"`
	Password string `form:"password" validate:"required"`
	Next     string `form:"next"`
	Errors   FormErrors
}

// SignupForm registers a new account.
type SignupForm struct {
	Username string `form:"username" validate:"required,min=2,max=50,alphanum"`
	Email    string `form:"email" validate:"required,email,max=254"`
	Password string `form:"password" validate:"required,min=8"`
	Errors   FormErrors
}

// Validate collects field errors into Errors and returns an error when any were found.
func (f *AnswerForm) Validate() error {
	f.Content = strings.TrimSpace(f.Content)
	f.Errors = validateForm(f)
	return f.Errors.err()
}

func (f *PostForm) Validate() error {
	f.Title = strings.TrimSpace(f.Title)
	f.Content = strings.TrimSpace(f.Content)
	f.Errors = validateForm(f)
	if !f.Type.IsTopLevel() {
		f.Errors["type"] = "choose a top level post type"
	}
	return f.Errors.err()
}

func (f *LoginForm) Validate() error {
	f.Username = strings.TrimSpace(f.Username)
	f.Errors = validateForm(f)
	return f.Errors.err()
}

func (f *SignupForm) Validate() error {
	f.Username = strings.TrimSpace(f.Username)
	f.Email = strings.TrimSpace(f.Email)
	f.Errors = validateForm(f)
	return f.Errors.err()
}

// ErrInvalidForm is returned by form validation; details live in the form's Errors.
var ErrInvalidForm = errors.New("invalid form")

func (e FormErrors) err() error {
	if len(e) == 0 {
		return nil
	}
	return ErrInvalidForm
}

func validateForm(form interface{}) FormErrors {
	errs := FormErrors{}
	err := validate.Struct(form)
	if err == nil {
		return errs
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["__all__"] = err.Error()
		return errs
	}
	for _, fe := range verrs {
		errs[strings.ToLower(fe.Field())] = fieldMessage(fe)
	}
	return errs
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "email":
		return "enter a valid email address"
	case "alphanum":
		return field + " may only contain letters and digits"
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
