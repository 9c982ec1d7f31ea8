// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"

	"github.com/stahlscott/blockclub/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for authentication events (login, logout).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Auth string
	// Admin controls logging for admin action events (membership lifecycle,
	// neighborhood changes, staff-mediated edits).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Admin string
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}

	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.NeighborhoodID != nil {
		fields = append(fields, zap.String("neighborhood_id", event.NeighborhoodID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
// Logging destination is controlled by config: "all", "db", "log", or "off".
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAdmin:
		setting = l.config.Admin
	default:
		// Security events are always logged in full.
		setting = "all"
	}

	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if setting == "all" || setting == "db" {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Authentication Events ---

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, userID primitive.ObjectID, authMethod, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    &userID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"auth_method": authMethod,
			"email":       email,
		},
	})
}

// LoginFailed logs a failed login attempt. eventType must be one of the
// audit.EventLoginFailed* constants.
func (l *Logger) LoginFailed(ctx context.Context, r *http.Request, eventType, email, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     eventType,
		IP:            getClientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: reason,
		Details:       map[string]string{"email": email},
	})
}

// Logout logs a logout.
func (l *Logger) Logout(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		UserID:    &userID,
		IP:        getClientIP(r),
		Success:   true,
	})
}

// --- Impersonation Events ---

// ImpersonationStarted logs the start of a delegation.
func (l *Logger) ImpersonationStarted(ctx context.Context, r *http.Request, staffID, targetID primitive.ObjectID, sessionID string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategorySecurity,
		EventType: audit.EventImpersonationStarted,
		UserID:    &targetID,
		ActorID:   &staffID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details:   map[string]string{"session_id": sessionID},
	})
}

// ImpersonationEnded logs the end of a delegation.
func (l *Logger) ImpersonationEnded(ctx context.Context, r *http.Request, staffID, targetID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategorySecurity,
		EventType: audit.EventImpersonationEnded,
		UserID:    &targetID,
		ActorID:   &staffID,
		IP:        getClientIP(r),
		Success:   true,
	})
}

// ImpersonationDenied logs a rejected impersonation attempt.
func (l *Logger) ImpersonationDenied(ctx context.Context, r *http.Request, actorID primitive.ObjectID, targetID *primitive.ObjectID, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategorySecurity,
		EventType:     audit.EventImpersonationDenied,
		UserID:        targetID,
		ActorID:       &actorID,
		IP:            getClientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: reason,
	})
}

// --- Membership Lifecycle Events ---

// membershipEvent is the common shape of a lifecycle entry: who acted, who was
// affected, in which neighborhood.
func (l *Logger) membershipEvent(ctx context.Context, r *http.Request, eventType string, actorID, subjectID, neighborhoodID primitive.ObjectID, details map[string]string) {
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      eventType,
		NeighborhoodID: &neighborhoodID,
		UserID:         &subjectID,
		ActorID:        &actorID,
		IP:             getClientIP(r),
		Success:        true,
		Details:        details,
	})
}

// MembershipCreated logs a join request (pending or auto-activated).
func (l *Logger) MembershipCreated(ctx context.Context, r *http.Request, actorID, subjectID, neighborhoodID primitive.ObjectID, status string) {
	l.membershipEvent(ctx, r, audit.EventMembershipCreated, actorID, subjectID, neighborhoodID,
		map[string]string{"status": status})
}

// MembershipApproved logs an approval.
func (l *Logger) MembershipApproved(ctx context.Context, r *http.Request, actorID, subjectID, neighborhoodID primitive.ObjectID) {
	l.membershipEvent(ctx, r, audit.EventMembershipApproved, actorID, subjectID, neighborhoodID, nil)
}

// MembershipDeclined logs a decline.
func (l *Logger) MembershipDeclined(ctx context.Context, r *http.Request, actorID, subjectID, neighborhoodID primitive.ObjectID) {
	l.membershipEvent(ctx, r, audit.EventMembershipDeclined, actorID, subjectID, neighborhoodID, nil)
}

// MemberPromoted logs a promotion to neighborhood admin.
func (l *Logger) MemberPromoted(ctx context.Context, r *http.Request, actorID, subjectID, neighborhoodID primitive.ObjectID) {
	l.membershipEvent(ctx, r, audit.EventMemberPromoted, actorID, subjectID, neighborhoodID, nil)
}

// MemberDemoted logs a demotion back to member.
func (l *Logger) MemberDemoted(ctx context.Context, r *http.Request, actorID, subjectID, neighborhoodID primitive.ObjectID) {
	l.membershipEvent(ctx, r, audit.EventMemberDemoted, actorID, subjectID, neighborhoodID, nil)
}

// MemberMovedOut logs a move-out. The lending-item cascade count is carried
// in the structured logs, not here.
func (l *Logger) MemberMovedOut(ctx context.Context, r *http.Request, actorID, subjectID, neighborhoodID primitive.ObjectID) {
	l.membershipEvent(ctx, r, audit.EventMemberMovedOut, actorID, subjectID, neighborhoodID, nil)
}

// MemberRejoined logs a rejoin after move-out.
func (l *Logger) MemberRejoined(ctx context.Context, r *http.Request, actorID, subjectID, neighborhoodID primitive.ObjectID, status string) {
	l.membershipEvent(ctx, r, audit.EventMemberRejoined, actorID, subjectID, neighborhoodID,
		map[string]string{"status": status})
}

// --- Neighborhood and Account Events ---

// NeighborhoodCreated logs creation of a neighborhood.
func (l *Logger) NeighborhoodCreated(ctx context.Context, r *http.Request, actorID, neighborhoodID primitive.ObjectID, slug string) {
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      audit.EventNeighborhoodCreated,
		NeighborhoodID: &neighborhoodID,
		ActorID:        &actorID,
		IP:             getClientIP(r),
		Success:        true,
		Details:        map[string]string{"slug": slug},
	})
}

// NeighborhoodPolicyUpdated logs a change to the join policy.
func (l *Logger) NeighborhoodPolicyUpdated(ctx context.Context, r *http.Request, actorID, neighborhoodID primitive.ObjectID, requireApproval bool) {
	detail := "open"
	if requireApproval {
		detail = "require_approval"
	}
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      audit.EventNeighborhoodPolicyUpdated,
		NeighborhoodID: &neighborhoodID,
		ActorID:        &actorID,
		IP:             getClientIP(r),
		Success:        true,
		Details:        map[string]string{"policy": detail},
	})
}

// ProfileUpdated logs a profile edit. actorID differs from userID when the
// edit was made under impersonation.
func (l *Logger) ProfileUpdated(ctx context.Context, r *http.Request, actorID, userID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventProfileUpdated,
		UserID:    &userID,
		ActorID:   &actorID,
		IP:        getClientIP(r),
		Success:   true,
	})
}

// UserCreated logs a new account.
func (l *Logger) UserCreated(ctx context.Context, r *http.Request, userID primitive.ObjectID, authMethod string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventUserCreated,
		UserID:    &userID,
		IP:        getClientIP(r),
		Success:   true,
		Details:   map[string]string{"auth_method": authMethod},
	})
}
