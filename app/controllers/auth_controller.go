package controllers

import (
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"biostar/app/middleware"
	"biostar/app/models"
	"biostar/app/services"
)

// AuthController handles login, logout and signup.
type AuthController struct {
	renderer
	authService   *services.AuthService
	secureCookies bool
}

func NewAuthController(authService *services.AuthService, templates map[string]*template.Template, secureCookies bool) *AuthController {
	return &AuthController{
		renderer:      renderer{templates: templates},
		authService:   authService,
		secureCookies: secureCookies,
	}
}

// LoginPage renders the login form.
type LoginPage struct {
	Layout
	Form *models.LoginForm
}

// SignupPage renders the signup form.
type SignupPage struct {
	Layout
	Form *models.SignupForm
}

// safeNext only allows redirects to local paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return "/"
	}
	return next
}

// Login renders the login form on GET and opens a session on POST.
func (ac *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	form := &models.LoginForm{Next: r.URL.Query().Get("next")}
	if r.Method != http.MethodPost {
		ac.render(w, r, "login", http.StatusOK, LoginPage{Layout: newLayout(r, "Login"), Form: form})
		return
	}

	if err := r.ParseForm(); err != nil {
		sendError(w, r, "Failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}
	form.Username = r.FormValue("username")
	form.Password = r.FormValue("password")
	if next := r.FormValue("next"); next != "" {
		form.Next = next
	}

	session, _, err := ac.authService.Login(form)
	switch {
	case errors.Is(err, models.ErrInvalidForm):
		ac.render(w, r, "login", http.StatusBadRequest, LoginPage{Layout: newLayout(r, "Login"), Form: form})
		return
	case errors.Is(err, services.ErrInvalidCredentials):
		ac.render(w, r, "login", http.StatusUnauthorized, LoginPage{Layout: newLayout(r, "Login"), Form: form})
		return
	case err != nil:
		sendError(w, r, "Login failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, sessionCookie(session.Token, session.ExpiresAt, ac.secureCookies))
	http.Redirect(w, r, safeNext(form.Next), http.StatusSeeOther)
}

// Logout ends the session and clears the cookie.
func (ac *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookie); err == nil {
		if err := ac.authService.Logout(cookie.Value); err != nil {
			sendError(w, r, "Logout failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}
	http.SetCookie(w, sessionCookie("", time.Time{}, ac.secureCookies))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Signup renders the signup form on GET and creates the account on POST.
// New users are logged in straight away.
func (ac *AuthController) Signup(w http.ResponseWriter, r *http.Request) {
	form := &models.SignupForm{}
	if r.Method != http.MethodPost {
		ac.render(w, r, "signup", http.StatusOK, SignupPage{Layout: newLayout(r, "Sign up"), Form: form})
		return
	}

	if err := r.ParseForm(); err != nil {
		sendError(w, r, "Failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}
	form.Username = r.FormValue("username")
	form.Email = r.FormValue("email")
	form.Password = r.FormValue("password")

	if _, err := ac.authService.Register(form); err != nil {
		if errors.Is(err, models.ErrInvalidForm) {
			ac.render(w, r, "signup", http.StatusBadRequest, SignupPage{Layout: newLayout(r, "Sign up"), Form: form})
			return
		}
		sendError(w, r, "Signup failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	session, _, err := ac.authService.Login(&models.LoginForm{Username: form.Username, Password: form.Password})
	if err != nil {
		sendError(w, r, "Login failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, sessionCookie(session.Token, session.ExpiresAt, ac.secureCookies))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
