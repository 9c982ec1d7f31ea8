// Package audit attaches the real actor to mutations performed under
// impersonation.
//
// Every mutation site reachable while impersonating (profile edits, posts,
// membership transitions) takes a Stamp; stores apply it to the mutated row
// so the true staff actor is recoverable later. Passing a Stamp is mandatory
// at those sites rather than opt-in; forgetting it would silently break the
// audit guarantee.
package audit

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Field is the row-level field carrying the real actor's id.
const Field = "staff_actor_id"

// Stamp carries the staff actor behind an impersonated mutation.
// The zero value means "not impersonating" and applies nothing.
type Stamp struct {
	staffActorID *primitive.ObjectID
}

// None returns the empty stamp, for mutations performed as oneself.
func None() Stamp { return Stamp{} }

// ForStaffActor returns a stamp naming the real staff actor.
func ForStaffActor(staffUserID primitive.ObjectID) Stamp {
	return Stamp{staffActorID: &staffUserID}
}

// Present reports whether the stamp carries an actor.
func (s Stamp) Present() bool { return s.staffActorID != nil }

// StaffActorID returns the real actor's id, or nil when not impersonating.
func (s Stamp) StaffActorID() *primitive.ObjectID { return s.staffActorID }

// Apply adds the staff_actor_id field to a mutation document when the stamp
// is present; otherwise the document is returned unchanged.
func (s Stamp) Apply(doc bson.M) bson.M {
	if s.staffActorID == nil {
		return doc
	}
	if doc == nil {
		doc = bson.M{}
	}
	doc[Field] = *s.staffActorID
	return doc
}
