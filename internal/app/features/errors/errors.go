// internal/app/features/errors/errors.go
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stahlscott/blockclub/internal/app/policy/membershippolicy"
	"github.com/stahlscott/blockclub/internal/app/system/impersonate"
)

// errorResponse is the JSON body every error reply shares.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Render writes a coded error reply.
func Render(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, errorResponse{Error: code, Message: message})
}

// Unauthorized writes a 401.
func Unauthorized(w http.ResponseWriter) {
	Render(w, http.StatusUnauthorized, "unauthorized", "Please sign in to continue.")
}

// Forbidden writes a 403.
func Forbidden(w http.ResponseWriter, message string) {
	if message == "" {
		message = "You don't have permission to do that."
	}
	Render(w, http.StatusForbidden, "forbidden", message)
}

// NotFound writes a 404. Distinct from Forbidden: a missing resource never
// reports as a permissions failure.
func NotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Not found."
	}
	Render(w, http.StatusNotFound, "not_found", message)
}

// BadRequest writes a 400.
func BadRequest(w http.ResponseWriter, message string) {
	Render(w, http.StatusBadRequest, "bad_request", message)
}

// Internal writes a 500 without leaking the underlying error.
func Internal(w http.ResponseWriter) {
	Render(w, http.StatusInternalServerError, "internal", "Something went wrong.")
}

// FromPolicy maps a membership policy error onto the right HTTP reply.
// Unknown errors become 500s.
func FromPolicy(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, membershippolicy.ErrNotFound):
		NotFound(w, "Membership not found.")
	case errors.Is(err, membershippolicy.ErrUnauthorized):
		Forbidden(w, "You don't have the authority for that action.")
	case errors.Is(err, membershippolicy.ErrSelfActionForbidden):
		Forbidden(w, "You cannot perform this action on your own membership.")
	case errors.Is(err, membershippolicy.ErrForbiddenTransition):
		Render(w, http.StatusConflict, "forbidden_transition", "The membership is not in a state that allows this action.")
	case errors.Is(err, membershippolicy.ErrAlreadyMember):
		Render(w, http.StatusConflict, "already_member", "Already a member of this neighborhood.")
	case errors.Is(err, membershippolicy.ErrStaffCannotJoin):
		Forbidden(w, "Staff admins cannot hold memberships.")
	case errors.Is(err, membershippolicy.ErrUnknownAction):
		BadRequest(w, "Unknown membership action.")
	case errors.Is(err, impersonate.ErrNotStaff):
		Forbidden(w, "Impersonation requires a staff admin.")
	case errors.Is(err, impersonate.ErrForbiddenTarget):
		Forbidden(w, "Staff admins cannot be impersonated.")
	default:
		Internal(w)
	}
}
