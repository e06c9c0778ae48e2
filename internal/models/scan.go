package models

import "time"

// ScanChannel names the physical input source a token was decoded from.
type ScanChannel string

const (
	ChannelCamera ScanChannel = "CAMERA"
	ChannelRadio  ScanChannel = "RADIO"
)

// SessionState is the lifecycle state of a scan session.
type SessionState string

const (
	SessionIdle       SessionState = "IDLE"
	SessionCameraLive SessionState = "CAMERA_ACTIVE"
	SessionRadioLive  SessionState = "RADIO_ACTIVE"
	SessionFinalized  SessionState = "FINALIZED"
)

// ScanFeedback is the time-bounded acknowledgment shown after a scan.
// Duplicate-suppressed scans produce no feedback at all.
type ScanFeedback struct {
	Success   bool        `json:"success"`
	Name      string      `json:"name,omitempty"`
	Label     string      `json:"label,omitempty"`
	Message   string      `json:"message"`
	Channel   ScanChannel `json:"channel"`
	ShownAt   time.Time   `json:"shown_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// TallyEntry is one successful registration in the session-local tally.
type TallyEntry struct {
	Name    string      `json:"name"`
	Time    time.Time   `json:"time"`
	Success bool        `json:"success"`
	Channel ScanChannel `json:"channel"`
}

// RadioRecordType classifies an NFC payload record.
type RadioRecordType string

const (
	RadioRecordText RadioRecordType = "text"
	RadioRecordURL  RadioRecordType = "url"
)

// RadioRecord is one structured record from an NFC tag reading.
type RadioRecord struct {
	Type RadioRecordType `json:"type"`
	Data []byte          `json:"data"`
}
