// Package staff decides whether a principal is a staff admin.
//
// Staff admins are configured through a process-wide allow-list of email
// addresses loaded once at startup. They hold system-wide privilege but never
// hold membership rows of their own; they act on a member's behalf through
// impersonation.
package staff

import "strings"

// AllowList is an immutable set of staff-admin emails. Build it once during
// startup and share the pointer; it requires no locking.
type AllowList struct {
	emails map[string]struct{}
}

// NewAllowList builds an AllowList from the given emails. Entries are kept
// verbatim: matching is exact and case-sensitive, so "Admin@x.com" in the
// list does not grant "admin@x.com". Empty entries are dropped.
func NewAllowList(emails []string) *AllowList {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e == "" {
			continue
		}
		set[e] = struct{}{}
	}
	return &AllowList{emails: set}
}

// ParseList splits a comma-separated config value into emails, trimming
// surrounding whitespace per entry. Trimming happens here, at config-parse
// time; lookups never normalize.
func ParseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsStaffAdmin reports whether email is exactly present in the allow-list.
// Total over all inputs: empty input is false, substring or case-folded
// matches are false. No side effects.
func (a *AllowList) IsStaffAdmin(email string) bool {
	if a == nil || email == "" {
		return false
	}
	_, ok := a.emails[email]
	return ok
}

// CanHaveMemberships reports whether a principal with this email may hold
// membership rows. Staff admins may not.
func (a *AllowList) CanHaveMemberships(email string) bool {
	return !a.IsStaffAdmin(email)
}

// Size returns the number of configured staff admins. Used for startup logging.
func (a *AllowList) Size() int {
	if a == nil {
		return 0
	}
	return len(a.emails)
}
