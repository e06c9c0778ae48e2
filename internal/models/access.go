package models

import "time"

// AccessMode is the directional meaning of a scan.
type AccessMode string

const (
	ModeEntry AccessMode = "ENTRY"
	// ModePickup is a supervised release. It counts as leaving for presence
	// purposes but is logged distinctly for reporting.
	ModePickup AccessMode = "PICKUP"
	ModeExit   AccessMode = "EXIT"
)

// Valid returns true when the mode is a supported value.
func (m AccessMode) Valid() bool {
	switch m {
	case ModeEntry, ModePickup, ModeExit:
		return true
	default:
		return false
	}
}

// Leaving reports whether the mode removes a person from the inside set.
func (m AccessMode) Leaving() bool {
	return m == ModePickup || m == ModeExit
}

// AccessEvent is one registered badge scan. Rows are append-only; the only
// permitted change after insert is flipping Active off (corrective
// soft delete).
type AccessEvent struct {
	ID         int64      `db:"id" json:"id"`
	Identifier string     `db:"identifier" json:"identifier"`
	Mode       AccessMode `db:"mode" json:"mode"`
	PersonSnapshot
	RegisteredBy     *string   `db:"registered_by" json:"registered_by,omitempty"`
	RegisteredByName *string   `db:"registered_by_name" json:"registered_by_name,omitempty"`
	DeviceInfo       *string   `db:"device_info" json:"device_info,omitempty"`
	Active           bool      `db:"active" json:"active"`
	RecordedAt       time.Time `db:"recorded_at" json:"recorded_at"`
}

// AccessEventFilter scopes log queries. Results are always ordered by
// recorded_at descending.
type AccessEventFilter struct {
	Date       *time.Time
	Mode       *AccessMode
	ActiveOnly bool
	Page       int
	PageSize   int
}

// OperatorContext identifies the station operator registering a scan.
type OperatorContext struct {
	OperatorID   string
	OperatorName string
	DeviceInfo   string
}

// RegistrationResult is the outcome of a single register call. Duplicate
// suppression and unrecognised identifiers are reported here, never raised.
type RegistrationResult struct {
	Success   bool            `json:"success"`
	Duplicate bool            `json:"duplicate"`
	Person    *PersonSnapshot `json:"person,omitempty"`
	Event     *AccessEvent    `json:"event,omitempty"`
	Message   string          `json:"message"`
}

// DaySummary aggregates one calendar day of the access log. It is derived
// on demand and never stored.
type DaySummary struct {
	Date           string `json:"date"`
	Entries        int    `json:"entries"`
	Pickups        int    `json:"pickups"`
	Exits          int    `json:"exits"`
	StudentsInside int    `json:"students_inside"`
	StaffInside    int    `json:"staff_inside"`
	// AbsentEstimate compares same-day entries against the expected
	// population supplied by the roster, floored at zero.
	AbsentEstimate int `json:"absent_estimate"`
}
