package models

import "time"

// PersonCategory distinguishes the two badge-holder populations.
type PersonCategory string

const (
	CategoryStudent PersonCategory = "STUDENT"
	CategoryStaff   PersonCategory = "STAFF"
)

// Valid returns true when the category is a supported value.
func (c PersonCategory) Valid() bool {
	switch c {
	case CategoryStudent, CategoryStaff:
		return true
	default:
		return false
	}
}

// Person is a badge holder known to the identifier directory. The directory
// is owned by the external credential service; this service only reads it.
type Person struct {
	ID         string         `db:"id" json:"id"`
	Identifier string         `db:"badge_identifier" json:"badge_identifier"`
	Category   PersonCategory `db:"category" json:"category"`
	FullName   string         `db:"full_name" json:"full_name"`
	// Label carries the grade/section for students or the role for staff.
	Label     string    `db:"label" json:"label"`
	PhotoRef  *string   `db:"photo_ref" json:"photo_ref,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Snapshot freezes the identity fields that get denormalised onto an
// access event at registration time.
func (p *Person) Snapshot() PersonSnapshot {
	return PersonSnapshot{
		PersonID: p.ID,
		Category: p.Category,
		FullName: p.FullName,
		Label:    p.Label,
	}
}

// PersonSnapshot is the immutable identity captured on each access event.
// Later directory edits never rewrite history.
type PersonSnapshot struct {
	PersonID string         `db:"person_id" json:"person_id"`
	Category PersonCategory `db:"person_category" json:"person_category"`
	FullName string         `db:"person_name" json:"person_name"`
	Label    string         `db:"person_label" json:"person_label"`
}
