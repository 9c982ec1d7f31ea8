// internal/app/features/login/handler.go
package login

import (
	"context"
	"errors"
	"net/http"
	"strings"

	uierrors "github.com/stahlscott/blockclub/internal/app/features/errors"
	"github.com/stahlscott/blockclub/internal/app/store/audit"
	userstore "github.com/stahlscott/blockclub/internal/app/store/users"
	"github.com/stahlscott/blockclub/internal/app/system/auditlog"
	"github.com/stahlscott/blockclub/internal/app/system/auth"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the slice of the user store the login flow needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u models.User) (models.User, error)
}

type Handler struct {
	Users      UserStore
	SessionMgr *auth.SessionManager
	Audit      *auditlog.Logger
	Log        *zap.Logger
}

func NewHandler(users UserStore, sessionMgr *auth.SessionManager, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Users:      users,
		SessionMgr: sessionMgr,
		Audit:      auditLogger,
		Log:        logger,
	}
}

// ServeLogin handles POST /login with form fields email and password.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		uierrors.BadRequest(w, "Malformed form data.")
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		uierrors.BadRequest(w, "Email and password are required.")
		return
	}

	u, err := h.Users.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			h.Audit.LoginFailed(r.Context(), r, audit.EventLoginFailedUserNotFound, email, "no such account")
			// Same reply as a wrong password so accounts cannot be enumerated.
			uierrors.Render(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password.")
			return
		}
		h.Log.Error("login: user lookup failed", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	if u.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		h.Audit.LoginFailed(r.Context(), r, audit.EventLoginFailedWrongPassword, email, "wrong password")
		uierrors.Render(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password.")
		return
	}

	if err := h.SessionMgr.SignIn(w, r, auth.SessionUser{
		ID:    u.ID.Hex(),
		Name:  u.FullName,
		Email: u.Email,
	}); err != nil {
		h.Log.Error("login: save session", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	h.Audit.LoginSuccess(r.Context(), r, u.ID, "password", u.Email)
	redirectAfterAuth(w, r)
}

// ServeRegister handles POST /register with name, email, and password.
func (h *Handler) ServeRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		uierrors.BadRequest(w, "Malformed form data.")
		return
	}
	name := strings.TrimSpace(r.PostFormValue("name"))
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if name == "" || email == "" {
		uierrors.BadRequest(w, "Name and email are required.")
		return
	}
	if len(password) < 8 {
		uierrors.BadRequest(w, "Password must be at least 8 characters.")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		h.Log.Error("register: hash password", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	u, err := h.Users.Create(r.Context(), models.User{
		FullName:     name,
		Email:        email,
		AuthMethod:   "password",
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicateEmail) {
			uierrors.Render(w, http.StatusConflict, "email_taken", "That email is already registered.")
			return
		}
		h.Log.Error("register: create user", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	if err := h.SessionMgr.SignIn(w, r, auth.SessionUser{
		ID:    u.ID.Hex(),
		Name:  u.FullName,
		Email: u.Email,
	}); err != nil {
		h.Log.Error("register: save session", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	h.Audit.UserCreated(r.Context(), r, u.ID, "password")
	h.Audit.LoginSuccess(r.Context(), r, u.ID, "password", u.Email)
	redirectAfterAuth(w, r)
}

// redirectAfterAuth sends the browser to the return URL or the dashboard.
// Only same-site paths are honored.
func redirectAfterAuth(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("return")
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		target = "/dashboard"
	}
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
