package scanner

import (
	"context"
	"strings"
)

// CameraDevice describes one attached capture device.
type CameraDevice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// CameraStream abstracts acquisition and release of the optical decode
// hardware. Decoded frame text reaches the session through
// Session.HandleCameraText; the stream itself only owns the device.
type CameraStream interface {
	// Enable acquires the capture hardware and enumerates its devices.
	// An empty device list is not an error; the session stays active
	// flagged as missing a camera.
	Enable(ctx context.Context) ([]CameraDevice, error)
	Disable() error
}

var rearLabels = []string{"back", "rear", "environment"}

// PickCameraDevice selects the device a session should bind to. A
// rear-facing camera wins when the labels give one away, otherwise the
// first device is used.
func PickCameraDevice(devices []CameraDevice) (CameraDevice, bool) {
	if len(devices) == 0 {
		return CameraDevice{}, false
	}
	for _, device := range devices {
		label := strings.ToLower(device.Label)
		for _, hint := range rearLabels {
			if strings.Contains(label, hint) {
				return device, true
			}
		}
	}
	return devices[0], true
}
