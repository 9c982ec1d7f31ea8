// Package impersonate manages the short-lived delegation that lets a staff
// admin act as a specific member.
//
// The delegation lives in its own signed cookie (gorilla/securecookie),
// separate from the auth session. There are exactly two states: not
// impersonating, and impersonating one subject. Starting a new delegation
// replaces any existing one (the cookie is overwritten, never stacked);
// ending it or letting it expire returns to not-impersonating.
package impersonate

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/stahlscott/blockclub/internal/app/system/auth"
	"github.com/stahlscott/blockclub/internal/app/system/staff"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// CookieName is the delegation cookie, distinct from the auth session cookie.
const CookieName = "blockclub-delegation"

var (
	// ErrNotStaff rejects a Start by a principal not on the allow-list.
	ErrNotStaff = errors.New("impersonation requires a staff admin")
	// ErrForbiddenTarget rejects impersonating another staff admin.
	ErrForbiddenTarget = errors.New("cannot impersonate a staff admin")
)

// Delegation binds a staff principal to an impersonated subject.
type Delegation struct {
	SessionID    string             `json:"sid"`
	StaffUserID  primitive.ObjectID `json:"staff_user_id"`
	TargetUserID primitive.ObjectID `json:"impersonated_user_id"`
	IssuedAt     time.Time          `json:"issued_at"`
}

// Manager creates, reads, and destroys delegations.
type Manager struct {
	codec  *securecookie.SecureCookie
	allow  *staff.AllowList
	maxAge time.Duration
	secure bool
	log    *zap.Logger
}

// NewManager builds a Manager. hashKey signs the delegation cookie; reuse of
// the session key is acceptable since the cookie names differ.
func NewManager(hashKey []byte, allow *staff.AllowList, maxAge time.Duration, secure bool, logger *zap.Logger) *Manager {
	codec := securecookie.New(hashKey, nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(maxAge.Seconds()))
	return &Manager{
		codec:  codec,
		allow:  allow,
		maxAge: maxAge,
		secure: secure,
		log:    logger,
	}
}

// Start begins impersonating target on behalf of staffUser and returns the
// redirect target (the subject's landing view).
//
// The caller must be on the staff allow-list and the target must not be; the
// second check prevents privilege-laundering between staff accounts. Writing
// the cookie implicitly replaces any delegation already present in this
// browser session.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request, staffUser *auth.SessionUser, target models.User) (string, error) {
	if staffUser == nil || !m.allow.IsStaffAdmin(staffUser.Email) {
		return "", ErrNotStaff
	}
	if m.allow.IsStaffAdmin(target.Email) {
		return "", ErrForbiddenTarget
	}

	staffID, err := primitive.ObjectIDFromHex(staffUser.ID)
	if err != nil {
		return "", fmt.Errorf("malformed staff user id %q: %w", staffUser.ID, err)
	}

	d := Delegation{
		SessionID:    uuid.NewString(),
		StaffUserID:  staffID,
		TargetUserID: target.ID,
		IssuedAt:     time.Now().UTC(),
	}

	encoded, err := m.codec.Encode(CookieName, d)
	if err != nil {
		return "", fmt.Errorf("encode delegation: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	m.log.Info("impersonation started",
		zap.String("session_id", d.SessionID),
		zap.String("staff_user_id", staffID.Hex()),
		zap.String("impersonated_user_id", target.ID.Hex()))

	return "/dashboard", nil
}

// Context returns the request's delegation, or nil when absent, expired, or
// tampered with. Invalid cookies are treated as not-impersonating; resolution
// fails closed rather than erroring.
func (m *Manager) Context(r *http.Request) *Delegation {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}

	var d Delegation
	if err := m.codec.Decode(CookieName, c.Value, &d); err != nil {
		m.log.Warn("rejecting invalid delegation cookie", zap.Error(err))
		return nil
	}
	if time.Since(d.IssuedAt) > m.maxAge {
		return nil
	}
	return &d
}

// End destroys the delegation and returns the redirect target (the staff
// panel, not the subject's view).
func (m *Manager) End(w http.ResponseWriter, r *http.Request) string {
	if d := m.Context(r); d != nil {
		m.log.Info("impersonation ended",
			zap.String("session_id", d.SessionID),
			zap.String("staff_user_id", d.StaffUserID.Hex()),
			zap.String("impersonated_user_id", d.TargetUserID.Hex()))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return "/staff"
}
