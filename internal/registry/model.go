package registry

import "time"

// Categories an identity can register under.
const (
	CategoryStudent = "Student"
	CategoryTeacher = "Teacher"
	CategoryGuest   = "Guest"
)

// GuestSentinel fills external_id and affiliation for guest registrations.
// Guests may register repeatedly under it without colliding.
const GuestSentinel = "Guest"

// Identity is one registered person or guest. Never updated in place;
// created by registration and removed by the administrative delete.
type Identity struct {
	ID           int64     `json:"id"`
	DisplayName  string    `json:"display_name"`
	ExternalID   string    `json:"external_id"`
	Affiliation  string    `json:"affiliation"`
	Contact      string    `json:"contact"`
	Category     string    `json:"category"`
	TokenPath    string    `json:"token_path,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// KnownCategory reports whether c is one of the three registrable kinds.
func KnownCategory(c string) bool {
	return c == CategoryStudent || c == CategoryTeacher || c == CategoryGuest
}
