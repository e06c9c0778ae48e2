package dto

import "github.com/noah-isme/sma-gate-api/internal/models"

// StartSessionRequest opens a scan session bound to one access mode.
type StartSessionRequest struct {
	Mode    string `json:"mode" binding:"required"`
	Channel string `json:"channel"`
}

// SwitchChannelRequest moves the session to the other input channel.
type SwitchChannelRequest struct {
	Channel string `json:"channel" binding:"required"`
}

// CameraTokenRequest carries one decoded QR frame from the camera stream.
type CameraTokenRequest struct {
	Text string `json:"text" binding:"required"`
}

// RadioReadingRequest carries the structured records of one NFC tag read.
type RadioReadingRequest struct {
	Records []RadioRecordPayload `json:"records" binding:"required"`
}

// RadioRecordPayload is the wire form of a single NFC record.
type RadioRecordPayload struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// RadioErrorRequest reports an asynchronous radio failure from the station.
type RadioErrorRequest struct {
	Cause string `json:"cause" binding:"required"`
	Fatal bool   `json:"fatal"`
}

// SessionResponse is the externally visible snapshot of a scan session.
type SessionResponse struct {
	ID            string               `json:"id"`
	Mode          models.AccessMode    `json:"mode"`
	State         models.SessionState  `json:"state"`
	ActiveChannel *models.ScanChannel  `json:"active_channel,omitempty"`
	CameraMissing bool                 `json:"camera_missing,omitempty"`
	RadioError    string               `json:"radio_error,omitempty"`
	Feedback      *models.ScanFeedback `json:"feedback,omitempty"`
	Tally         []models.TallyEntry  `json:"tally"`
}
