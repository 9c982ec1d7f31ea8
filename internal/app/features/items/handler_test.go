package items_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stahlscott/blockclub/internal/app/features/items"
	itemstore "github.com/stahlscott/blockclub/internal/app/store/items"
	neighborhoodstore "github.com/stahlscott/blockclub/internal/app/store/neighborhoods"
	"github.com/stahlscott/blockclub/internal/app/system/audit"
	"github.com/stahlscott/blockclub/internal/app/system/auth"
	"github.com/stahlscott/blockclub/internal/app/system/authctx"
	"github.com/stahlscott/blockclub/internal/app/system/impersonate"
	"github.com/stahlscott/blockclub/internal/app/system/staff"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"github.com/stahlscott/blockclub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeItems struct {
	byID      map[primitive.ObjectID]models.Item
	lastStamp audit.Stamp
}

func newFakeItems() *fakeItems {
	return &fakeItems{byID: map[primitive.ObjectID]models.Item{}}
}

func (f *fakeItems) Create(_ context.Context, item models.Item, stamp audit.Stamp) (models.Item, error) {
	item.ID = primitive.NewObjectID()
	f.byID[item.ID] = item
	f.lastStamp = stamp
	return item, nil
}

func (f *fakeItems) GetByID(_ context.Context, id primitive.ObjectID) (*models.Item, error) {
	if item, ok := f.byID[id]; ok {
		return &item, nil
	}
	return nil, itemstore.ErrNotFound
}

func (f *fakeItems) ListByNeighborhood(_ context.Context, nID primitive.ObjectID) ([]models.Item, error) {
	var out []models.Item
	for _, item := range f.byID {
		if item.NeighborhoodID == nID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeItems) Delete(_ context.Context, id primitive.ObjectID) error {
	if _, ok := f.byID[id]; !ok {
		return itemstore.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type memberKey struct {
	user, nbhd primitive.ObjectID
}

type fakeMemberships struct {
	rows map[memberKey]models.Membership
}

func (f *fakeMemberships) add(userID, nID primitive.ObjectID, role, status string) {
	f.rows[memberKey{userID, nID}] = models.Membership{
		ID: primitive.NewObjectID(), UserID: userID, NeighborhoodID: nID, Role: role, Status: status,
	}
}

func (f *fakeMemberships) Find(_ context.Context, userID, nID primitive.ObjectID) (*models.Membership, error) {
	if m, ok := f.rows[memberKey{userID, nID}]; ok {
		return &m, nil
	}
	return nil, nil
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
	handler     *items.Handler
	items       *fakeItems
	memberships *fakeMemberships
	nID         primitive.ObjectID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	allow := staff.NewAllowList([]string{"staff@example.com"})
	imp := impersonate.NewManager([]byte("test-delegation-key-32-bytes-min"), allow, time.Hour, false, zap.NewNop())
	memberships := &fakeMemberships{rows: map[memberKey]models.Membership{}}
	resolver := authctx.NewResolver(allow, imp, memberships, zap.NewNop())
	store := newFakeItems()
	nID := primitive.NewObjectID()
	nbhds := &fakeNeighborhoods{byID: map[primitive.ObjectID]models.Neighborhood{
		nID: {ID: nID, Slug: "elm-street", Name: "Elm Street"},
	}}
	return &fixture{
		handler:     items.NewHandler(store, memberships, nbhds, resolver, zap.NewNop()),
		items:       store,
		memberships: memberships,
		nID:         nID,
	}
}

func activeMember(f *fixture) *auth.SessionUser {
	su := &auth.SessionUser{ID: primitive.NewObjectID().Hex(), Name: "Resident", Email: "resident@example.com"}
	uid, _ := primitive.ObjectIDFromHex(su.ID)
	f.memberships.add(uid, f.nID, models.RoleMember, models.StatusActive)
	return su
}

func createRequest(su *auth.SessionUser, nID, body string) *http.Request {
	req := auth.WithSessionUser(httptest.NewRequest("POST", "/neighborhoods/"+nID+"/items", strings.NewReader(body)), su)
	return testutil.WithChiURLParam(req, "neighborhoodID", nID)
}

func TestServeCreate_Success(t *testing.T) {
	f := newFixture(t)
	su := activeMember(f)

	rec := httptest.NewRecorder()
	f.handler.ServeCreate(rec, createRequest(su, f.nID.Hex(), `{"title":"Ladder","description":"8ft","category":"tools"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var item models.Item
	if err := json.NewDecoder(rec.Body).Decode(&item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.Title != "Ladder" || item.OwnerID.Hex() != su.ID {
		t.Errorf("unexpected item: %+v", item)
	}
	if f.items.lastStamp.Present() {
		t.Error("self-listing must not carry a staff-actor stamp")
	}
}

func TestServeCreate_NonMemberDenied(t *testing.T) {
	f := newFixture(t)
	su := &auth.SessionUser{ID: primitive.NewObjectID().Hex(), Email: "stranger@example.com"}

	rec := httptest.NewRecorder()
	f.handler.ServeCreate(rec, createRequest(su, f.nID.Hex(), `{"title":"Ladder"}`))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestServeCreate_EmptyTitle(t *testing.T) {
	f := newFixture(t)
	su := activeMember(f)

	rec := httptest.NewRecorder()
	f.handler.ServeCreate(rec, createRequest(su, f.nID.Hex(), `{"title":"  "}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServeCreate_NeighborhoodMissing(t *testing.T) {
	f := newFixture(t)
	su := activeMember(f)

	rec := httptest.NewRecorder()
	f.handler.ServeCreate(rec, createRequest(su, primitive.NewObjectID().Hex(), `{"title":"Ladder"}`))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServeList_MovedOutMemberDenied(t *testing.T) {
	f := newFixture(t)
	su := &auth.SessionUser{ID: primitive.NewObjectID().Hex(), Email: "gone@example.com"}
	uid, _ := primitive.ObjectIDFromHex(su.ID)
	f.memberships.add(uid, f.nID, models.RoleMember, models.StatusMovedOut)

	req := auth.WithSessionUser(httptest.NewRequest("GET", "/neighborhoods/"+f.nID.Hex()+"/items", nil), su)
	req = testutil.WithChiURLParam(req, "neighborhoodID", f.nID.Hex())
	rec := httptest.NewRecorder()
	f.handler.ServeList(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("moved-out member browsing the library: expected 403, got %d", rec.Code)
	}
}

func TestServeList_MemberSeesLibrary(t *testing.T) {
	f := newFixture(t)
	su := activeMember(f)
	uid, _ := primitive.ObjectIDFromHex(su.ID)
	f.items.Create(context.Background(), models.Item{NeighborhoodID: f.nID, OwnerID: uid, Title: "Drill"}, audit.None())

	req := auth.WithSessionUser(httptest.NewRequest("GET", "/neighborhoods/"+f.nID.Hex()+"/items", nil), su)
	req = testutil.WithChiURLParam(req, "neighborhoodID", f.nID.Hex())
	rec := httptest.NewRecorder()
	f.handler.ServeList(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var rows []models.Item
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 item, got %d", len(rows))
	}
}

func TestServeDelete_OwnerRemovesListing(t *testing.T) {
	f := newFixture(t)
	su := activeMember(f)
	uid, _ := primitive.ObjectIDFromHex(su.ID)
	item, _ := f.items.Create(context.Background(), models.Item{NeighborhoodID: f.nID, OwnerID: uid, Title: "Drill"}, audit.None())

	req := auth.WithSessionUser(httptest.NewRequest("DELETE", "/items/"+item.ID.Hex(), nil), su)
	req = testutil.WithChiURLParam(req, "itemID", item.ID.Hex())
	rec := httptest.NewRecorder()
	f.handler.ServeDelete(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(f.items.byID) != 0 {
		t.Error("item must be removed")
	}
}

func TestServeDelete_BystanderDenied(t *testing.T) {
	f := newFixture(t)
	owner, _ := primitive.ObjectIDFromHex(activeMember(f).ID)
	item, _ := f.items.Create(context.Background(), models.Item{NeighborhoodID: f.nID, OwnerID: owner, Title: "Drill"}, audit.None())

	other := activeMember(f)
	req := auth.WithSessionUser(httptest.NewRequest("DELETE", "/items/"+item.ID.Hex(), nil), other)
	req = testutil.WithChiURLParam(req, "itemID", item.ID.Hex())
	rec := httptest.NewRecorder()
	f.handler.ServeDelete(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestServeDelete_StaffRemovesAnyListing(t *testing.T) {
	f := newFixture(t)
	owner, _ := primitive.ObjectIDFromHex(activeMember(f).ID)
	item, _ := f.items.Create(context.Background(), models.Item{NeighborhoodID: f.nID, OwnerID: owner, Title: "Drill"}, audit.None())

	staffSU := &auth.SessionUser{ID: primitive.NewObjectID().Hex(), Email: "staff@example.com"}
	req := auth.WithSessionUser(httptest.NewRequest("DELETE", "/items/"+item.ID.Hex(), nil), staffSU)
	req = testutil.WithChiURLParam(req, "itemID", item.ID.Hex())
	rec := httptest.NewRecorder()
	f.handler.ServeDelete(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
