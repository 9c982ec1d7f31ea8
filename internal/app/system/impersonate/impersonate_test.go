package impersonate_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stahlscott/blockclub/internal/app/system/auth"
	"github.com/stahlscott/blockclub/internal/app/system/impersonate"
	"github.com/stahlscott/blockclub/internal/app/system/staff"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var testKey = []byte("test-delegation-key-32-bytes-min")

func newManager(t *testing.T, allow *staff.AllowList) *impersonate.Manager {
	t.Helper()
	return impersonate.NewManager(testKey, allow, time.Hour, false, zap.NewNop())
}

func staffSession() *auth.SessionUser {
	return &auth.SessionUser{
		ID:    primitive.NewObjectID().Hex(),
		Name:  "Staff",
		Email: "staff@x.com",
	}
}

func member(email string) models.User {
	return models.User{ID: primitive.NewObjectID(), FullName: "Member", Email: email}
}

// requestWith copies a response's cookies onto a fresh request.
func requestWith(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest("GET", "/", nil)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 {
			req.AddCookie(c)
		}
	}
	return req
}

func TestStart_RoundTrip(t *testing.T) {
	allow := staff.NewAllowList([]string{"staff@x.com"})
	m := newManager(t, allow)
	su := staffSession()
	target := member("u1@example.com")

	rec := httptest.NewRecorder()
	redirect, err := m.Start(rec, httptest.NewRequest("POST", "/staff/impersonate", nil), su, target)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if redirect != "/dashboard" {
		t.Errorf("redirect: got %q, want /dashboard", redirect)
	}

	d := m.Context(requestWith(rec))
	if d == nil {
		t.Fatal("expected delegation after Start")
	}
	if d.TargetUserID != target.ID {
		t.Errorf("target: got %s, want %s", d.TargetUserID.Hex(), target.ID.Hex())
	}
	if d.StaffUserID.Hex() != su.ID {
		t.Errorf("staff: got %s, want %s", d.StaffUserID.Hex(), su.ID)
	}
	if d.SessionID == "" {
		t.Error("expected a session id")
	}
}

func TestStart_RejectsNonStaffCaller(t *testing.T) {
	allow := staff.NewAllowList([]string{"staff@x.com"})
	m := newManager(t, allow)

	caller := &auth.SessionUser{ID: primitive.NewObjectID().Hex(), Email: "resident@x.com"}
	rec := httptest.NewRecorder()
	_, err := m.Start(rec, httptest.NewRequest("POST", "/", nil), caller, member("u1@example.com"))
	if !errors.Is(err, impersonate.ErrNotStaff) {
		t.Fatalf("expected ErrNotStaff, got %v", err)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("no cookie may be written on rejection")
	}
}

func TestStart_RejectsStaffTarget(t *testing.T) {
	allow := staff.NewAllowList([]string{"staff@x.com", "other-staff@x.com"})
	m := newManager(t, allow)

	rec := httptest.NewRecorder()
	_, err := m.Start(rec, httptest.NewRequest("POST", "/", nil), staffSession(), member("other-staff@x.com"))
	if !errors.Is(err, impersonate.ErrForbiddenTarget) {
		t.Fatalf("expected ErrForbiddenTarget, got %v", err)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("no session may be created for a forbidden target")
	}
}

func TestStart_ReplacesNotStacks(t *testing.T) {
	allow := staff.NewAllowList([]string{"staff@x.com"})
	m := newManager(t, allow)
	su := staffSession()
	b := member("b@example.com")
	c := member("c@example.com")

	rec1 := httptest.NewRecorder()
	if _, err := m.Start(rec1, httptest.NewRequest("POST", "/", nil), su, b); err != nil {
		t.Fatalf("Start(A→B) failed: %v", err)
	}

	// Second Start carries the first cookie, as a browser would.
	req2 := requestWith(rec1)
	rec2 := httptest.NewRecorder()
	if _, err := m.Start(rec2, req2, su, c); err != nil {
		t.Fatalf("Start(A→C) failed: %v", err)
	}

	d := m.Context(requestWith(rec2))
	if d == nil {
		t.Fatal("expected delegation after second Start")
	}
	if d.TargetUserID != c.ID {
		t.Errorf("subject: got %s, want %s (C); B must be replaced", d.TargetUserID.Hex(), c.ID.Hex())
	}
}

func TestEnd_DestroysDelegation(t *testing.T) {
	allow := staff.NewAllowList([]string{"staff@x.com"})
	m := newManager(t, allow)

	rec1 := httptest.NewRecorder()
	if _, err := m.Start(rec1, httptest.NewRequest("POST", "/", nil), staffSession(), member("u1@example.com")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	rec2 := httptest.NewRecorder()
	redirect := m.End(rec2, requestWith(rec1))
	if redirect != "/staff" {
		t.Errorf("End redirect: got %q, want /staff", redirect)
	}

	// The deletion cookie must expire the delegation.
	found := false
	for _, c := range rec2.Result().Cookies() {
		if c.Name == impersonate.CookieName {
			found = true
			if c.MaxAge != -1 {
				t.Errorf("cookie MaxAge: got %d, want -1", c.MaxAge)
			}
		}
	}
	if !found {
		t.Error("expected delegation cookie set for deletion")
	}
}

func TestContext_RejectsTamperedCookie(t *testing.T) {
	allow := staff.NewAllowList([]string{"staff@x.com"})
	m := newManager(t, allow)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: impersonate.CookieName, Value: "not-a-valid-delegation"})

	if d := m.Context(req); d != nil {
		t.Error("tampered cookie must resolve to not-impersonating")
	}
}

func TestContext_NoCookie(t *testing.T) {
	allow := staff.NewAllowList([]string{"staff@x.com"})
	m := newManager(t, allow)

	if d := m.Context(httptest.NewRequest("GET", "/", nil)); d != nil {
		t.Error("absent cookie must resolve to not-impersonating")
	}
}
