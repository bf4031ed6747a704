package persistence

// Identifiable is implemented by every entity handled by a Repository.
// K is the type of the entity's primary key.
//
// Prefer naming the key after what it means in the domain and exposing it
// through GetID/SetID, e.g. a User keyed by its username:
//
//	func (u *User) GetID() string   { return u.Username }
//	func (u *User) SetID(id string) { u.Username = id }
//
// Entities are expected to be pointer types: tracking is by identity.
type Identifiable[K comparable] interface {
	GetID() K
	SetID(id K)
}

// AutoID is an embeddable identity backed by an int64 key assigned by the
// store on first insert. The zero value is a transient entity without a key.
type AutoID struct {
	ID int64 `json:"id"`
}

// GetID returns the assigned key, or 0 when none was assigned yet.
func (a *AutoID) GetID() int64 { return a.ID }

// SetID sets the key. Stores call it after generating one.
func (a *AutoID) SetID(id int64) { a.ID = id }

// HasID reports whether a key was assigned.
func (a AutoID) HasID() bool { return a.ID != 0 }

// Equal compares two identities by key only. Two transient identities are equal.
func (a AutoID) Equal(other AutoID) bool { return a.ID == other.ID }

// HasKey reports whether e carries a non-zero key.
func HasKey[T Identifiable[K], K comparable](e T) bool {
	var zero K
	return e.GetID() != zero
}
