package login_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stahlscott/blockclub/internal/app/features/login"
	userstore "github.com/stahlscott/blockclub/internal/app/store/users"
	"github.com/stahlscott/blockclub/internal/app/system/auth"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsers struct {
	byEmail map[string]*models.User
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, userstore.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) Create(_ context.Context, u models.User) (models.User, error) {
	if _, ok := f.byEmail[u.Email]; ok {
		return models.User{}, userstore.ErrDuplicateEmail
	}
	u.ID = primitive.NewObjectID()
	f.byEmail[u.Email] = &u
	return u, nil
}

func newTestHandler(t *testing.T, users *fakeUsers) *login.Handler {
	t.Helper()
	sessionMgr, err := auth.NewSessionManager("test-session-key-for-testing-only", "test-session", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	return login.NewHandler(users, sessionMgr, nil, zap.NewNop())
}

func seedUser(t *testing.T, users *fakeUsers, email, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	u := &models.User{
		ID:           primitive.NewObjectID(),
		FullName:     "Ada Resident",
		Email:        email,
		AuthMethod:   "password",
		PasswordHash: string(hash),
	}
	users.byEmail[email] = u
	return u
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestServeLogin_Success(t *testing.T) {
	users := &fakeUsers{byEmail: map[string]*models.User{}}
	seedUser(t, users, "ada@example.com", "correct horse")
	handler := newTestHandler(t, users)

	rec := httptest.NewRecorder()
	handler.ServeLogin(rec, postForm("/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"correct horse"},
	}))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Location: got %q, want /dashboard", loc)
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Error("expected a session cookie")
	}
}

func TestServeLogin_WrongPassword(t *testing.T) {
	users := &fakeUsers{byEmail: map[string]*models.User{}}
	seedUser(t, users, "ada@example.com", "correct horse")
	handler := newTestHandler(t, users)

	rec := httptest.NewRecorder()
	handler.ServeLogin(rec, postForm("/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"wrong"},
	}))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestServeLogin_UnknownUserSameReply(t *testing.T) {
	users := &fakeUsers{byEmail: map[string]*models.User{}}
	seedUser(t, users, "ada@example.com", "correct horse")
	handler := newTestHandler(t, users)

	recUnknown := httptest.NewRecorder()
	handler.ServeLogin(recUnknown, postForm("/login", url.Values{
		"email":    {"nobody@example.com"},
		"password": {"whatever"},
	}))

	recWrong := httptest.NewRecorder()
	handler.ServeLogin(recWrong, postForm("/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"wrong"},
	}))

	if recUnknown.Code != recWrong.Code {
		t.Errorf("status codes differ: %d vs %d", recUnknown.Code, recWrong.Code)
	}
	if recUnknown.Body.String() != recWrong.Body.String() {
		t.Error("unknown-user and wrong-password replies must be indistinguishable")
	}
}

func TestServeLogin_OAuthOnlyAccountRejected(t *testing.T) {
	users := &fakeUsers{byEmail: map[string]*models.User{
		"ada@example.com": {
			ID:         primitive.NewObjectID(),
			FullName:   "Ada Resident",
			Email:      "ada@example.com",
			AuthMethod: "google",
		},
	}}
	handler := newTestHandler(t, users)

	rec := httptest.NewRecorder()
	handler.ServeLogin(rec, postForm("/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"anything"},
	}))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for password login on an OAuth account, got %d", rec.Code)
	}
}

func TestServeLogin_MissingFields(t *testing.T) {
	handler := newTestHandler(t, &fakeUsers{byEmail: map[string]*models.User{}})

	rec := httptest.NewRecorder()
	handler.ServeLogin(rec, postForm("/login", url.Values{"email": {"ada@example.com"}}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServeLogin_ReturnURL(t *testing.T) {
	users := &fakeUsers{byEmail: map[string]*models.User{}}
	seedUser(t, users, "ada@example.com", "correct horse")
	handler := newTestHandler(t, users)

	rec := httptest.NewRecorder()
	handler.ServeLogin(rec, postForm("/login?return=%2Fneighborhoods", url.Values{
		"email":    {"ada@example.com"},
		"password": {"correct horse"},
	}))

	if loc := rec.Header().Get("Location"); loc != "/neighborhoods" {
		t.Errorf("Location: got %q, want /neighborhoods", loc)
	}
}

func TestServeLogin_RejectsOffsiteReturnURL(t *testing.T) {
	users := &fakeUsers{byEmail: map[string]*models.User{}}
	seedUser(t, users, "ada@example.com", "correct horse")
	handler := newTestHandler(t, users)

	rec := httptest.NewRecorder()
	handler.ServeLogin(rec, postForm("/login?return=%2F%2Fevil.example", url.Values{
		"email":    {"ada@example.com"},
		"password": {"correct horse"},
	}))

	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Location: got %q, want /dashboard", loc)
	}
}

func TestServeRegister_CreatesAndSignsIn(t *testing.T) {
	users := &fakeUsers{byEmail: map[string]*models.User{}}
	handler := newTestHandler(t, users)

	rec := httptest.NewRecorder()
	handler.ServeRegister(rec, postForm("/register", url.Values{
		"name":     {"Ada Resident"},
		"email":    {"ada@example.com"},
		"password": {"correct horse"},
	}))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}
	u, ok := users.byEmail["ada@example.com"]
	if !ok {
		t.Fatal("expected account to be created")
	}
	if u.PasswordHash == "" || u.PasswordHash == "correct horse" {
		t.Error("password must be stored hashed")
	}
}

func TestServeRegister_ShortPassword(t *testing.T) {
	handler := newTestHandler(t, &fakeUsers{byEmail: map[string]*models.User{}})

	rec := httptest.NewRecorder()
	handler.ServeRegister(rec, postForm("/register", url.Values{
		"name":     {"Ada Resident"},
		"email":    {"ada@example.com"},
		"password": {"short"},
	}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServeRegister_DuplicateEmail(t *testing.T) {
	users := &fakeUsers{byEmail: map[string]*models.User{}}
	seedUser(t, users, "ada@example.com", "correct horse")
	handler := newTestHandler(t, users)

	rec := httptest.NewRecorder()
	handler.ServeRegister(rec, postForm("/register", url.Values{
		"name":     {"Other Ada"},
		"email":    {"ada@example.com"},
		"password": {"another pass"},
	}))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
