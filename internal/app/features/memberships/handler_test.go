package memberships_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stahlscott/blockclub/internal/app/features/memberships"
	"github.com/stahlscott/blockclub/internal/app/policy/membershippolicy"
	neighborhoodstore "github.com/stahlscott/blockclub/internal/app/store/neighborhoods"
	"github.com/stahlscott/blockclub/internal/app/system/auth"
	"github.com/stahlscott/blockclub/internal/app/system/authctx"
	"github.com/stahlscott/blockclub/internal/app/system/impersonate"
	"github.com/stahlscott/blockclub/internal/app/system/staff"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"github.com/stahlscott/blockclub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakePolicy struct {
	joinResult models.Membership
	joinErr    error

	transitionResult models.Membership
	transitionErr    error
	gotAction        membershippolicy.Action
	calls            int
}

func (f *fakePolicy) Join(_ context.Context, _ authctx.AuthContext, nID primitive.ObjectID) (models.Membership, error) {
	f.calls++
	return f.joinResult, f.joinErr
}

func (f *fakePolicy) Transition(_ context.Context, _ authctx.AuthContext, action membershippolicy.Action, _ primitive.ObjectID) (models.Membership, error) {
	f.calls++
	f.gotAction = action
	return f.transitionResult, f.transitionErr
}

type rosterKey struct {
	user, nbhd primitive.ObjectID
}

type fakeReader struct {
	rows map[rosterKey]models.Membership
}

func newFakeReader() *fakeReader {
	return &fakeReader{rows: map[rosterKey]models.Membership{}}
}

func (f *fakeReader) add(userID, nID primitive.ObjectID, role, status string) {
	f.rows[rosterKey{userID, nID}] = models.Membership{
		ID:             primitive.NewObjectID(),
		UserID:         userID,
		NeighborhoodID: nID,
		Role:           role,
		Status:         status,
	}
}

func (f *fakeReader) Find(_ context.Context, userID, nID primitive.ObjectID) (*models.Membership, error) {
	if m, ok := f.rows[rosterKey{userID, nID}]; ok {
		return &m, nil
	}
	return nil, nil
}

func (f *fakeReader) ListByNeighborhood(_ context.Context, nID primitive.ObjectID, status string) ([]models.Membership, error) {
	var out []models.Membership
	for _, m := range f.rows {
		if m.NeighborhoodID == nID && m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeReader) CountActive(_ context.Context, nID primitive.ObjectID) (int64, error) {
	var n int64
	for _, m := range f.rows {
		if m.NeighborhoodID == nID && m.Status == models.StatusActive {
			n++
		}
	}
	return n, nil
}

type fakeNeighborhoods struct {
	byID map[primitive.ObjectID]models.Neighborhood
}

func (f *fakeNeighborhoods) GetByID(_ context.Context, id primitive.ObjectID) (*models.Neighborhood, error) {
	if n, ok := f.byID[id]; ok {
		return &n, nil
	}
	return nil, neighborhoodstore.ErrNotFound
}

type fixture struct {
	handler *memberships.Handler
	policy  *fakePolicy
	reader  *fakeReader
	nbhds   *fakeNeighborhoods
	nID     primitive.ObjectID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	allow := staff.NewAllowList([]string{"staff@example.com"})
	imp := impersonate.NewManager([]byte("test-delegation-key-32-bytes-min"), allow, time.Hour, false, zap.NewNop())
	reader := newFakeReader()
	resolver := authctx.NewResolver(allow, imp, reader, zap.NewNop())
	policy := &fakePolicy{}
	nID := primitive.NewObjectID()
	nbhds := &fakeNeighborhoods{byID: map[primitive.ObjectID]models.Neighborhood{
		nID: {ID: nID, Slug: "elm-street", Name: "Elm Street"},
	}}
	return &fixture{
		handler: memberships.NewHandler(policy, reader, nbhds, resolver, nil, zap.NewNop()),
		policy:  policy,
		reader:  reader,
		nbhds:   nbhds,
		nID:     nID,
	}
}

func memberSession() *auth.SessionUser {
	return &auth.SessionUser{ID: primitive.NewObjectID().Hex(), Name: "Resident", Email: "resident@example.com"}
}

func staffSession() *auth.SessionUser {
	return &auth.SessionUser{ID: primitive.NewObjectID().Hex(), Name: "Staff", Email: "staff@example.com"}
}

func joinRequest(su *auth.SessionUser, nID string) *http.Request {
	req := httptest.NewRequest("POST", "/neighborhoods/"+nID+"/join", nil)
	if su != nil {
		req = auth.WithSessionUser(req, su)
	}
	return testutil.WithChiURLParam(req, "neighborhoodID", nID)
}

func actionRequest(su *auth.SessionUser, mID, action string) *http.Request {
	req := auth.WithSessionUser(httptest.NewRequest("POST", "/memberships/"+mID+"/"+action, nil), su)
	req = testutil.WithChiURLParam(req, "membershipID", mID)
	return testutil.WithChiURLParam(req, "action", action)
}

func TestServeJoin_Success(t *testing.T) {
	f := newFixture(t)
	su := memberSession()
	uid, _ := primitive.ObjectIDFromHex(su.ID)
	f.policy.joinResult = models.Membership{
		ID:             primitive.NewObjectID(),
		UserID:         uid,
		NeighborhoodID: f.nID,
		Role:           models.RoleMember,
		Status:         models.StatusPending,
	}

	rec := httptest.NewRecorder()
	f.handler.ServeJoin(rec, joinRequest(su, f.nID.Hex()))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var m models.Membership
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Status != models.StatusPending {
		t.Errorf("status: got %q", m.Status)
	}
}

func TestServeJoin_Anonymous(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeJoin(rec, joinRequest(nil, f.nID.Hex()))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if f.policy.calls != 0 {
		t.Error("policy must not run for anonymous requests")
	}
}

func TestServeJoin_NeighborhoodMissing(t *testing.T) {
	f := newFixture(t)
	f.policy.joinErr = fmt.Errorf("load neighborhood: %w", neighborhoodstore.ErrNotFound)

	rec := httptest.NewRecorder()
	f.handler.ServeJoin(rec, joinRequest(memberSession(), primitive.NewObjectID().Hex()))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServeJoin_AlreadyMember(t *testing.T) {
	f := newFixture(t)
	f.policy.joinErr = membershippolicy.ErrAlreadyMember

	rec := httptest.NewRecorder()
	f.handler.ServeJoin(rec, joinRequest(memberSession(), f.nID.Hex()))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestServeJoin_StaffDenied(t *testing.T) {
	f := newFixture(t)
	f.policy.joinErr = membershippolicy.ErrStaffCannotJoin

	rec := httptest.NewRecorder()
	f.handler.ServeJoin(rec, joinRequest(staffSession(), f.nID.Hex()))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestServeAction_Approve(t *testing.T) {
	f := newFixture(t)
	f.policy.transitionResult = models.Membership{
		ID:             primitive.NewObjectID(),
		UserID:         primitive.NewObjectID(),
		NeighborhoodID: f.nID,
		Role:           models.RoleMember,
		Status:         models.StatusActive,
	}

	rec := httptest.NewRecorder()
	f.handler.ServeAction(rec, actionRequest(memberSession(), primitive.NewObjectID().Hex(), "approve"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.policy.gotAction != membershippolicy.ActionApprove {
		t.Errorf("action: got %q", f.policy.gotAction)
	}
}

func TestServeAction_MoveOutVerb(t *testing.T) {
	f := newFixture(t)
	f.policy.transitionResult = models.Membership{Status: models.StatusMovedOut}

	rec := httptest.NewRecorder()
	f.handler.ServeAction(rec, actionRequest(memberSession(), primitive.NewObjectID().Hex(), "move-out"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.policy.gotAction != membershippolicy.ActionMarkMovedOut {
		t.Errorf("action: got %q", f.policy.gotAction)
	}
}

func TestServeAction_UnknownVerb(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeAction(rec, actionRequest(memberSession(), primitive.NewObjectID().Hex(), "obliterate"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if f.policy.calls != 0 {
		t.Error("unknown verbs must not reach the policy")
	}
}

func TestServeAction_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", membershippolicy.ErrNotFound, http.StatusNotFound},
		{"unauthorized", membershippolicy.ErrUnauthorized, http.StatusForbidden},
		{"self action", membershippolicy.ErrSelfActionForbidden, http.StatusForbidden},
		{"bad state", membershippolicy.ErrForbiddenTransition, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.policy.transitionErr = tc.err

			rec := httptest.NewRecorder()
			f.handler.ServeAction(rec, actionRequest(memberSession(), primitive.NewObjectID().Hex(), "approve"))

			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestServeAction_MalformedID(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeAction(rec, actionRequest(memberSession(), "nope", "approve"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func rosterRequest(su *auth.SessionUser, nID, status string) *http.Request {
	url := "/neighborhoods/" + nID + "/members"
	if status != "" {
		url += "?status=" + status
	}
	req := auth.WithSessionUser(httptest.NewRequest("GET", url, nil), su)
	return testutil.WithChiURLParam(req, "neighborhoodID", nID)
}

func TestServeListMembers_NeighborhoodMissing(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeListMembers(rec, rosterRequest(memberSession(), primitive.NewObjectID().Hex(), ""))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServeListMembers_ActiveRosterForMember(t *testing.T) {
	f := newFixture(t)
	su := memberSession()
	uid, _ := primitive.ObjectIDFromHex(su.ID)
	f.reader.add(uid, f.nID, models.RoleMember, models.StatusActive)
	f.reader.add(primitive.NewObjectID(), f.nID, models.RoleAdmin, models.StatusActive)

	rec := httptest.NewRecorder()
	f.handler.ServeListMembers(rec, rosterRequest(su, f.nID.Hex(), ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var v struct {
		ActiveMembers int64               `json:"active_members"`
		Members       []models.Membership `json:"members"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(v.Members) != 2 {
		t.Errorf("expected 2 active members, got %d", len(v.Members))
	}
	if v.ActiveMembers != 2 {
		t.Errorf("active_members: got %d, want 2", v.ActiveMembers)
	}
}

func TestServeListMembers_NonMemberDenied(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeListMembers(rec, rosterRequest(memberSession(), f.nID.Hex(), ""))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestServeListMembers_PendingQueueRequiresAuthority(t *testing.T) {
	f := newFixture(t)
	su := memberSession()
	uid, _ := primitive.ObjectIDFromHex(su.ID)
	f.reader.add(uid, f.nID, models.RoleMember, models.StatusActive)
	f.reader.add(primitive.NewObjectID(), f.nID, models.RoleMember, models.StatusPending)

	rec := httptest.NewRecorder()
	f.handler.ServeListMembers(rec, rosterRequest(su, f.nID.Hex(), models.StatusPending))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("plain member reading the pending queue: expected 403, got %d", rec.Code)
	}
}

func TestServeListMembers_PendingQueueForAdmin(t *testing.T) {
	f := newFixture(t)
	su := memberSession()
	uid, _ := primitive.ObjectIDFromHex(su.ID)
	f.reader.add(uid, f.nID, models.RoleAdmin, models.StatusActive)
	f.reader.add(primitive.NewObjectID(), f.nID, models.RoleMember, models.StatusPending)

	rec := httptest.NewRecorder()
	f.handler.ServeListMembers(rec, rosterRequest(su, f.nID.Hex(), models.StatusPending))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var v struct {
		ActiveMembers int64               `json:"active_members"`
		Members       []models.Membership `json:"members"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(v.Members) != 1 {
		t.Errorf("expected 1 pending membership, got %d", len(v.Members))
	}
	if v.ActiveMembers != 1 {
		t.Errorf("active_members must count the active roster, not the queue: got %d", v.ActiveMembers)
	}
}

func TestServeListMembers_StaffSeesRoster(t *testing.T) {
	f := newFixture(t)
	f.reader.add(primitive.NewObjectID(), f.nID, models.RoleMember, models.StatusActive)

	rec := httptest.NewRecorder()
	f.handler.ServeListMembers(rec, rosterRequest(staffSession(), f.nID.Hex(), ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
