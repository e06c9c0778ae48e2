package scanner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gate-api/internal/models"
	appErrors "github.com/noah-isme/sma-gate-api/pkg/errors"
)

type fakeCamera struct {
	devices   []CameraDevice
	enableErr error
	enables   int
	disables  int
}

func (f *fakeCamera) Enable(ctx context.Context) ([]CameraDevice, error) {
	f.enables++
	if f.enableErr != nil {
		return nil, f.enableErr
	}
	return f.devices, nil
}

func (f *fakeCamera) Disable() error {
	f.disables++
	return nil
}

type fakeRadioSession struct {
	mu      sync.Mutex
	aborted bool
	done    chan struct{}
}

func newFakeRadioSession() *fakeRadioSession {
	return &fakeRadioSession{done: make(chan struct{})}
}

func (f *fakeRadioSession) Scan(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-f.done:
	}
	return nil
}

func (f *fakeRadioSession) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.aborted {
		f.aborted = true
		close(f.done)
	}
}

func (f *fakeRadioSession) isAborted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborted
}

type fakeRadioOpener struct {
	openErr  error
	sessions []*fakeRadioSession
}

func (f *fakeRadioOpener) Open(ctx context.Context) (RadioSession, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	session := newFakeRadioSession()
	f.sessions = append(f.sessions, session)
	return session, nil
}

type fakeRegistrar struct {
	calls   []string
	results map[string]*models.RegistrationResult
	err     error
}

func (f *fakeRegistrar) Register(ctx context.Context, identifier string, mode models.AccessMode, operator *models.OperatorContext) (*models.RegistrationResult, error) {
	f.calls = append(f.calls, identifier)
	if f.err != nil {
		return nil, f.err
	}
	if result, ok := f.results[identifier]; ok {
		return result, nil
	}
	return &models.RegistrationResult{Success: false, Message: "identifier not recognized"}, nil
}

type fakeScannerMetrics struct {
	channelErrors []string
	opened        int
	closed        int
}

func (f *fakeScannerMetrics) RecordChannelError(channel models.ScanChannel, kind string) {
	f.channelErrors = append(f.channelErrors, string(channel)+":"+kind)
}

func (f *fakeScannerMetrics) SessionOpened() { f.opened++ }
func (f *fakeScannerMetrics) SessionClosed() { f.closed++ }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestSession(t *testing.T, camera *fakeCamera, radio *fakeRadioOpener, registrar *fakeRegistrar, clock *fakeClock) (*Session, *fakeScannerMetrics) {
	t.Helper()
	metrics := &fakeScannerMetrics{}
	session := NewSession(SessionParams{
		ID:        "test-session",
		Mode:      models.ModeEntry,
		Operator:  models.OperatorContext{OperatorID: "op-1", OperatorName: "Portería"},
		Registrar: registrar,
		Camera:    camera,
		Radio:     radio,
		Metrics:   metrics,
		Now:       clock.Now,
		Config:    Config{FeedbackTTL: 4 * time.Second, ErrorTTL: 6 * time.Second, TallyLimit: 20},
	})
	return session, metrics
}

func successResult(id, name, label string) *models.RegistrationResult {
	return &models.RegistrationResult{
		Success: true,
		Person:  &models.PersonSnapshot{PersonID: id, Category: models.CategoryStudent, FullName: name, Label: label},
		Message: "ENTRY registered: " + name,
	}
}

func TestSessionStartCamera(t *testing.T) {
	camera := &fakeCamera{devices: []CameraDevice{{ID: "front", Label: "Front"}, {ID: "back", Label: "Back Camera"}}}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)}
	session, _ := newTestSession(t, camera, &fakeRadioOpener{}, &fakeRegistrar{}, clock)

	require.NoError(t, session.Start(context.Background(), models.ChannelCamera))

	snap := session.Snapshot()
	assert.Equal(t, models.SessionCameraLive, snap.State)
	require.NotNil(t, snap.ActiveChannel)
	assert.Equal(t, models.ChannelCamera, *snap.ActiveChannel)
	require.NotNil(t, snap.Device)
	assert.Equal(t, "back", snap.Device.ID)
	assert.False(t, snap.CameraMissing)
}

func TestSessionStartCameraWithoutDevices(t *testing.T) {
	camera := &fakeCamera{}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)}
	session, _ := newTestSession(t, camera, &fakeRadioOpener{}, &fakeRegistrar{}, clock)

	require.NoError(t, session.Start(context.Background(), models.ChannelCamera))

	snap := session.Snapshot()
	assert.Equal(t, models.SessionCameraLive, snap.State)
	assert.True(t, snap.CameraMissing)
	assert.Nil(t, snap.Device)
}

func TestSessionSwitchCameraToRadio(t *testing.T) {
	camera := &fakeCamera{devices: []CameraDevice{{ID: "back", Label: "Back"}}}
	radio := &fakeRadioOpener{}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)}
	session, _ := newTestSession(t, camera, radio, &fakeRegistrar{}, clock)
	require.NoError(t, session.Start(context.Background(), models.ChannelCamera))

	require.NoError(t, session.SwitchTo(context.Background(), models.ChannelRadio))

	snap := session.Snapshot()
	assert.Equal(t, models.SessionRadioLive, snap.State)
	require.NotNil(t, snap.ActiveChannel)
	assert.Equal(t, models.ChannelRadio, *snap.ActiveChannel)
	assert.Equal(t, 1, camera.disables)
	require.Len(t, radio.sessions, 1)
}

func TestSessionSwitchRadioToCameraAbortsScan(t *testing.T) {
	camera := &fakeCamera{devices: []CameraDevice{{ID: "back", Label: "Back"}}}
	radio := &fakeRadioOpener{}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)}
	session, _ := newTestSession(t, camera, radio, &fakeRegistrar{}, clock)
	require.NoError(t, session.Start(context.Background(), models.ChannelRadio))

	require.NoError(t, session.SwitchTo(context.Background(), models.ChannelCamera))

	snap := session.Snapshot()
	assert.Equal(t, models.SessionCameraLive, snap.State)
	require.Len(t, radio.sessions, 1)
	assert.True(t, radio.sessions[0].isAborted())
}

func TestSessionSwitchFailsClosed(t *testing.T) {
	camera := &fakeCamera{devices: []CameraDevice{{ID: "back", Label: "Back"}}}
	radio := &fakeRadioOpener{openErr: appErrors.ErrChannelUnsupported}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)}
	session, _ := newTestSession(t, camera, radio, &fakeRegistrar{}, clock)
	require.NoError(t, session.Start(context.Background(), models.ChannelCamera))

	err := session.SwitchTo(context.Background(), models.ChannelRadio)

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrChannelUnsupported.Code, appErrors.FromError(err).Code)

	// The camera is re-acquired so the session never ends up without a
	// live channel.
	snap := session.Snapshot()
	assert.Equal(t, models.SessionCameraLive, snap.State)
	require.NotNil(t, snap.ActiveChannel)
	assert.Equal(t, models.ChannelCamera, *snap.ActiveChannel)
	assert.Equal(t, 2, camera.enables)
}

func TestSessionCameraTextRequiresActiveCamera(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)}
	registrar := &fakeRegistrar{}
	session, _ := newTestSession(t, &fakeCamera{}, &fakeRadioOpener{}, registrar, clock)

	err := session.HandleCameraText(context.Background(), "STU-a3f9b1c2d4e5")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrChannelInactive.Code, appErrors.FromError(err).Code)
	assert.Empty(t, registrar.calls)
}

func TestSessionFinalizedRejectsInput(t *testing.T) {
	camera := &fakeCamera{devices: []CameraDevice{{ID: "back", Label: "Back"}}}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)}
	session, _ := newTestSession(t, camera, &fakeRadioOpener{}, &fakeRegistrar{}, clock)
	require.NoError(t, session.Start(context.Background(), models.ChannelCamera))

	session.Finalize()

	err := session.HandleCameraText(context.Background(), "STU-a3f9b1c2d4e5")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionFinalized.Code, appErrors.FromError(err).Code)

	err = session.SwitchTo(context.Background(), models.ChannelRadio)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionFinalized.Code, appErrors.FromError(err).Code)
}

func TestSessionFinalizeIsIdempotent(t *testing.T) {
	camera := &fakeCamera{devices: []CameraDevice{{ID: "back", Label: "Back"}}}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)}
	session, _ := newTestSession(t, camera, &fakeRadioOpener{}, &fakeRegistrar{}, clock)
	require.NoError(t, session.Start(context.Background(), models.ChannelCamera))

	session.Finalize()
	session.Finalize()

	assert.Equal(t, models.SessionFinalized, session.Snapshot().State)
	assert.Equal(t, 1, camera.disables)
}

func TestSessionSuccessfulScanFeedbackAndTally(t *testing.T) {
	camera := &fakeCamera{devices: []CameraDevice{{ID: "back", Label: "Back"}}}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 15, 0, 0, time.UTC)}
	registrar := &fakeRegistrar{results: map[string]*models.RegistrationResult{
		"STU-a3f9b1c2d4e5": successResult("p1", "Sofía Martínez López", "3B"),
	}}
	session, _ := newTestSession(t, camera, &fakeRadioOpener{}, registrar, clock)
	require.NoError(t, session.Start(context.Background(), models.ChannelCamera))

	require.NoError(t, session.HandleCameraText(context.Background(), "STU-a3f9b1c2d4e5"))

	snap := session.Snapshot()
	require.NotNil(t, snap.Feedback)
	assert.True(t, snap.Feedback.Success)
	assert.Equal(t, "Sofía Martínez López", snap.Feedback.Name)
	assert.Equal(t, "3B", snap.Feedback.Label)
	require.Len(t, snap.Tally, 1)
	assert.Equal(t, "Sofía Martínez López", snap.Tally[0].Name)
}

func TestSessionDuplicateScanIsSilent(t *testing.T) {
	camera := &fakeCamera{devices: []CameraDevice{{ID: "back", Label: "Back"}}}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 15, 0, 0, time.UTC)}
	registrar := &fakeRegistrar{results: map[string]*models.RegistrationResult{
		"STU-a3f9b1c2d4e5": {
			Success:   true,
			Duplicate: true,
			Person:    &models.PersonSnapshot{PersonID: "p1", Category: models.CategoryStudent, FullName: "Sofía Martínez López"},
		},
	}}
	session, _ := newTestSession(t, camera, &fakeRadioOpener{}, registrar, clock)
	require.NoError(t, session.Start(context.Background(), models.ChannelCamera))

	require.NoError(t, session.HandleCameraText(context.Background(), "STU-a3f9b1c2d4e5"))

	snap := session.Snapshot()
	assert.Nil(t, snap.Feedback)
	assert.Empty(t, snap.Tally)
	require.Len(t, registrar.calls, 1)
}

func TestSessionUnrecognizedScanShowsFailureWithoutTally(t *testing.T) {
	camera := &fakeCamera{devices: []CameraDevice{{ID: "back", Label: "Back"}}}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 15, 0, 0, time.UTC)}
	session, _ := newTestSession(t, camera, &fakeRadioOpener{}, &fakeRegistrar{}, clock)
	require.NoError(t, session.Start(context.Background(), models.ChannelCamera))

	require.NoError(t, session.HandleCameraText(context.Background(), "XYZ-unknown"))

	snap := session.Snapshot()
	require.NotNil(t, snap.Feedback)
	assert.False(t, snap.Feedback.Success)
	assert.Equal(t, "identifier not recognized", snap.Feedback.Message)
	assert.Empty(t, snap.Tally)
}

func TestSessionFeedbackExpires(t *testing.T) {
	camera := &fakeCamera{devices: []CameraDevice{{ID: "back", Label: "Back"}}}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 15, 0, 0, time.UTC)}
	registrar := &fakeRegistrar{results: map[string]*models.RegistrationResult{
		"STU-a3f9b1c2d4e5": successResult("p1", "Sofía Martínez López", "3B"),
	}}
	session, _ := newTestSession(t, camera, &fakeRadioOpener{}, registrar, clock)
	require.NoError(t, session.Start(context.Background(), models.ChannelCamera))
	require.NoError(t, session.HandleCameraText(context.Background(), "STU-a3f9b1c2d4e5"))

	require.NotNil(t, session.Snapshot().Feedback)

	clock.Advance(5 * time.Second)
	assert.Nil(t, session.Snapshot().Feedback)
}

func TestSessionTallyKeepsMostRecent(t *testing.T) {
	camera := &fakeCamera{devices: []CameraDevice{{ID: "back", Label: "Back"}}}
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 15, 0, 0, time.UTC)}
	registrar := &fakeRegistrar{results: map[string]*models.RegistrationResult{}}
	metrics := &fakeScannerMetrics{}
	session := NewSession(SessionParams{
		ID:        "test-session",
		Mode:      models.ModeEntry,
		Registrar: registrar,
		Camera:    camera,
		Radio:     &fakeRadioOpener{},
		Metrics:   metrics,
		Now:       clock.Now,
		Config:    Config{FeedbackTTL: 4 * time.Second, ErrorTTL: 6 * time.Second, TallyLimit: 3},
	})
	require.NoError(t, session.Start(context.Background(), models.ChannelCamera))

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		registrar.results["STU-"+id] = successResult(id, "Student "+id, "1A")
		require.NoError(t, session.HandleCameraText(context.Background(), "STU-"+id))
		clock.Advance(5 * time.Second)
	}

	snap := session.Snapshot()
	require.Len(t, snap.Tally, 3)
	assert.Equal(t, "Student e", snap.Tally[0].Name)
	assert.Equal(t, "Student d", snap.Tally[1].Name)
	assert.Equal(t, "Student c", snap.Tally[2].Name)
}

func TestSessionUndecodableRadioReading(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 15, 0, 0, time.UTC)}
	registrar := &fakeRegistrar{}
	radio := &fakeRadioOpener{}
	session, metrics := newTestSession(t, &fakeCamera{}, radio, registrar, clock)
	require.NoError(t, session.Start(context.Background(), models.ChannelRadio))

	require.NoError(t, session.HandleRadioReading(context.Background(), []models.RadioRecord{
		{Type: models.RadioRecordText, Data: []byte{0xff, 0xfe}},
	}))

	snap := session.Snapshot()
	require.NotNil(t, snap.Feedback)
	assert.False(t, snap.Feedback.Success)
	assert.Empty(t, registrar.calls)
	assert.Contains(t, metrics.channelErrors, "RADIO:undecodable")
}

func TestSessionRadioFatalErrorKeepsChannel(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 15, 0, 0, time.UTC)}
	radio := &fakeRadioOpener{}
	session, metrics := newTestSession(t, &fakeCamera{}, radio, &fakeRegistrar{}, clock)
	require.NoError(t, session.Start(context.Background(), models.ChannelRadio))

	session.HandleRadioError("reader unplugged", true)

	snap := session.Snapshot()
	assert.Equal(t, models.SessionRadioLive, snap.State)
	assert.Equal(t, "reader unplugged", snap.RadioError)
	require.Len(t, radio.sessions, 1)
	assert.True(t, radio.sessions[0].isAborted())
	assert.Contains(t, metrics.channelErrors, "RADIO:fatal")

	// Re-entering the radio channel opens a fresh hardware session.
	require.NoError(t, session.SwitchTo(context.Background(), models.ChannelRadio))
	require.Len(t, radio.sessions, 2)
	assert.False(t, radio.sessions[1].isAborted())
}

func TestSessionRadioTransientErrorKeepsScan(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 7, 15, 0, 0, time.UTC)}
	radio := &fakeRadioOpener{}
	session, metrics := newTestSession(t, &fakeCamera{}, radio, &fakeRegistrar{}, clock)
	require.NoError(t, session.Start(context.Background(), models.ChannelRadio))

	session.HandleRadioError("tag moved away too fast", false)

	snap := session.Snapshot()
	assert.Equal(t, models.SessionRadioLive, snap.State)
	assert.Equal(t, "tag moved away too fast", snap.RadioError)
	require.Len(t, radio.sessions, 1)
	assert.False(t, radio.sessions[0].isAborted())
	assert.Contains(t, metrics.channelErrors, "RADIO:transient")
}
