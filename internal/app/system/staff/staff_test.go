package staff_test

import (
	"testing"

	"github.com/stahlscott/blockclub/internal/app/system/staff"
)

func TestIsStaffAdmin_ExactMatch(t *testing.T) {
	allow := staff.NewAllowList([]string{"staff@x.com", "ops@x.com"})

	if !allow.IsStaffAdmin("staff@x.com") {
		t.Error("staff@x.com should be staff")
	}
	if !allow.IsStaffAdmin("ops@x.com") {
		t.Error("ops@x.com should be staff")
	}
	if allow.IsStaffAdmin("someone@else.com") {
		t.Error("someone@else.com should not be staff")
	}
}

func TestIsStaffAdmin_CaseSensitive(t *testing.T) {
	allow := staff.NewAllowList([]string{"Admin@x.com"})

	if !allow.IsStaffAdmin("Admin@x.com") {
		t.Error("exact-case entry should match")
	}
	if allow.IsStaffAdmin("admin@x.com") {
		t.Error("lowercased variant must not match (case-sensitive by contract)")
	}
	if allow.IsStaffAdmin("ADMIN@X.COM") {
		t.Error("uppercased variant must not match")
	}
}

func TestIsStaffAdmin_NoPartialMatch(t *testing.T) {
	allow := staff.NewAllowList([]string{"admin@x.com"})

	for _, email := range []string{
		"admin@x.com.fake",
		"xadmin@x.com",
		"admin@x.co",
		" admin@x.com",
		"admin@x.com ",
	} {
		if allow.IsStaffAdmin(email) {
			t.Errorf("%q must not match admin@x.com", email)
		}
	}
}

func TestIsStaffAdmin_EmptyInput(t *testing.T) {
	allow := staff.NewAllowList([]string{"staff@x.com"})

	if allow.IsStaffAdmin("") {
		t.Error("empty email must not be staff")
	}

	var nilAllow *staff.AllowList
	if nilAllow.IsStaffAdmin("staff@x.com") {
		t.Error("nil allow-list must reject everything")
	}
}

func TestCanHaveMemberships(t *testing.T) {
	allow := staff.NewAllowList([]string{"staff@x.com"})

	if allow.CanHaveMemberships("staff@x.com") {
		t.Error("staff admins may not hold memberships")
	}
	if !allow.CanHaveMemberships("resident@x.com") {
		t.Error("ordinary users may hold memberships")
	}
}

func TestParseList(t *testing.T) {
	got := staff.ParseList(" staff@x.com, ops@x.com ,,")
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(got), got)
	}
	if got[0] != "staff@x.com" || got[1] != "ops@x.com" {
		t.Errorf("unexpected entries: %v", got)
	}

	if staff.ParseList("") != nil {
		t.Error("empty config should parse to nil")
	}
}
