package scanner

import (
	"context"
	"sync"

	appErrors "github.com/noah-isme/sma-gate-api/pkg/errors"
)

// RemoteChannels is the channel provider for stations attached over
// HTTP. The station owns the physical camera and NFC reader; the server
// side only tracks capability and session lifetime, and readings arrive
// through the session endpoints instead of a local device loop.
type RemoteChannels struct {
	cameraEnabled bool
	radioEnabled  bool
	devices       []CameraDevice
}

// NewRemoteChannels builds a provider with the configured capabilities.
// The device list is what stations advertise; an empty list with the
// camera enabled models a station whose camera was unplugged.
func NewRemoteChannels(cameraEnabled, radioEnabled bool, devices []CameraDevice) *RemoteChannels {
	return &RemoteChannels{
		cameraEnabled: cameraEnabled,
		radioEnabled:  radioEnabled,
		devices:       devices,
	}
}

// Enable reports the advertised camera devices.
func (r *RemoteChannels) Enable(ctx context.Context) ([]CameraDevice, error) {
	if !r.cameraEnabled {
		return nil, appErrors.Clone(appErrors.ErrChannelPermission, "camera access is disabled")
	}
	return append([]CameraDevice(nil), r.devices...), nil
}

// Disable releases the camera. Remote stations release their own
// hardware, so there is nothing to do here.
func (r *RemoteChannels) Disable() error { return nil }

// Open starts a radio session when the capability is configured.
func (r *RemoteChannels) Open(ctx context.Context) (RadioSession, error) {
	if !r.radioEnabled {
		return nil, appErrors.ErrChannelUnsupported
	}
	return newRemoteRadioSession(), nil
}

// remoteRadioSession holds the radio slot open until aborted. Readings
// do not pass through Scan; they arrive via the session's reading
// endpoint, so Scan only blocks to mirror hardware session lifetime.
type remoteRadioSession struct {
	once sync.Once
	done chan struct{}
}

func newRemoteRadioSession() *remoteRadioSession {
	return &remoteRadioSession{done: make(chan struct{})}
}

func (r *remoteRadioSession) Scan(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-r.done:
		return nil
	}
}

func (r *remoteRadioSession) Abort() {
	r.once.Do(func() { close(r.done) })
}
