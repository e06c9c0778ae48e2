package scanner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gate-api/internal/models"
	appErrors "github.com/noah-isme/sma-gate-api/pkg/errors"
)

// Registrar is the registration engine a session feeds decoded tokens to.
type Registrar interface {
	Register(ctx context.Context, identifier string, mode models.AccessMode, operator *models.OperatorContext) (*models.RegistrationResult, error)
}

type sessionMetrics interface {
	RecordChannelError(channel models.ScanChannel, kind string)
}

// Config tunes session presentation.
type Config struct {
	FeedbackTTL time.Duration
	ErrorTTL    time.Duration
	TallyLimit  int
}

// activeChannel is the tagged variant holding the live input source and
// the resources that must be released before leaving it. A nil pointer
// means no channel owns hardware (idle or finalized). Radio keeps its
// slot with a nil handle after a fatal error so the operator can retry
// or switch away.
type activeChannel struct {
	channel models.ScanChannel
	device  *CameraDevice
	radio   RadioSession
	cancel  context.CancelFunc
}

// Session owns the lifecycle of one station's scan input. Exactly one
// channel is live at a time; every decoded token flows through the
// registrar; feedback and the local tally are session-private.
type Session struct {
	id       string
	mode     models.AccessMode
	operator models.OperatorContext

	registrar Registrar
	camera    CameraStream
	radio     RadioOpener
	metrics   sessionMetrics
	logger    *zap.Logger
	now       func() time.Time
	cfg       Config

	mu            sync.Mutex
	state         models.SessionState
	active        *activeChannel
	cameraMissing bool
	radioErr      string
	radioErrSeq   int
	radioErrTimer *time.Timer
	feedback      *models.ScanFeedback
	feedbackSeq   int
	feedbackTimer *time.Timer
	tally         []models.TallyEntry
	lastActivity  time.Time
}

// SessionParams groups constructor dependencies.
type SessionParams struct {
	ID       string
	Mode     models.AccessMode
	Operator models.OperatorContext

	Registrar Registrar
	Camera    CameraStream
	Radio     RadioOpener
	Metrics   sessionMetrics
	Logger    *zap.Logger
	Now       func() time.Time
	Config    Config
}

// NewSession constructs an idle session bound to one access mode. The
// mode never changes for the session's lifetime.
func NewSession(params SessionParams) *Session {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	cfg := params.Config
	if cfg.FeedbackTTL <= 0 {
		cfg.FeedbackTTL = 4 * time.Second
	}
	if cfg.ErrorTTL <= 0 {
		cfg.ErrorTTL = 6 * time.Second
	}
	if cfg.TallyLimit <= 0 {
		cfg.TallyLimit = 20
	}
	return &Session{
		id:           params.ID,
		mode:         params.Mode,
		operator:     params.Operator,
		registrar:    params.Registrar,
		camera:       params.Camera,
		radio:        params.Radio,
		metrics:      params.Metrics,
		logger:       logger.With(zap.String("session_id", params.ID)),
		now:          now,
		cfg:          cfg,
		state:        models.SessionIdle,
		lastActivity: now().UTC(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Mode returns the access mode the session registers under.
func (s *Session) Mode() models.AccessMode { return s.mode }

// LastActivity reports when the session last processed input.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Start activates the requested channel from the idle state.
func (s *Session) Start(ctx context.Context, channel models.ScanChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == models.SessionFinalized {
		return appErrors.ErrSessionFinalized
	}
	if s.active != nil {
		return appErrors.Clone(appErrors.ErrChannelInactive, "a channel is already active")
	}

	switch channel {
	case models.ChannelCamera:
		return s.startCameraLocked(ctx)
	case models.ChannelRadio:
		return s.startRadioLocked(ctx)
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown channel")
	}
}

// SwitchTo moves the session to the other channel, always releasing the
// current one first. When acquiring the new channel fails the session
// fails closed back onto the channel it came from, surfacing the
// capability or permission error instead of crashing.
func (s *Session) SwitchTo(ctx context.Context, channel models.ScanChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == models.SessionFinalized {
		return appErrors.ErrSessionFinalized
	}

	if s.active != nil && s.active.channel == channel {
		// Re-entering the radio channel after a fatal error reopens the
		// hardware session; anything else is a no-op.
		if channel == models.ChannelRadio && s.active.radio == nil {
			s.active = nil
			return s.startRadioLocked(ctx)
		}
		return nil
	}

	previous := models.ScanChannel("")
	if s.active != nil {
		previous = s.active.channel
	}

	s.releaseCameraLocked()
	s.abortRadioLocked()

	var err error
	switch channel {
	case models.ChannelCamera:
		err = s.startCameraLocked(ctx)
	case models.ChannelRadio:
		err = s.startRadioLocked(ctx)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, "unknown channel")
	}
	if err == nil {
		return nil
	}

	// Fail closed: restore the channel we released before reporting.
	switch previous {
	case models.ChannelCamera:
		if restoreErr := s.startCameraLocked(ctx); restoreErr != nil {
			s.logger.Warn("failed to restore camera after switch failure", zap.Error(restoreErr))
		}
	case models.ChannelRadio:
		if restoreErr := s.startRadioLocked(ctx); restoreErr != nil {
			s.logger.Warn("failed to restore radio after switch failure", zap.Error(restoreErr))
		}
	}
	return err
}

// HandleCameraText forwards one decoded QR frame. The decoded string is
// the identifier, passed through unchanged.
func (s *Session) HandleCameraText(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == models.SessionFinalized {
		return appErrors.ErrSessionFinalized
	}
	if s.state != models.SessionCameraLive {
		return appErrors.Clone(appErrors.ErrChannelInactive, "camera channel is not active")
	}
	if text == "" {
		return nil
	}
	s.forwardLocked(ctx, text, models.ChannelCamera)
	return nil
}

// HandleRadioReading normalises one NFC tag reading and forwards the
// decoded token. An undecodable payload surfaces as failed feedback
// rather than being dropped.
func (s *Session) HandleRadioReading(ctx context.Context, records []models.RadioRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == models.SessionFinalized {
		return appErrors.ErrSessionFinalized
	}
	if s.state != models.SessionRadioLive {
		return appErrors.Clone(appErrors.ErrChannelInactive, "radio channel is not active")
	}

	token := DecodeRadioPayload(records)
	if token == "" {
		if s.metrics != nil {
			s.metrics.RecordChannelError(models.ChannelRadio, "undecodable")
		}
		s.lastActivity = s.now().UTC()
		s.showFeedbackLocked(models.ScanFeedback{
			Success: false,
			Message: "tag payload not recognized",
			Channel: models.ChannelRadio,
		})
		return nil
	}
	s.forwardLocked(ctx, token, models.ChannelRadio)
	return nil
}

// HandleRadioError records an asynchronous radio failure. Transient read
// errors keep the hardware session open; fatal permission or capability
// errors close it while the session itself stays on the radio channel so
// the operator can retry or switch.
func (s *Session) HandleRadioError(cause string, fatal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.SessionRadioLive {
		return
	}

	kind := "transient"
	if fatal {
		kind = "fatal"
	}
	if s.metrics != nil {
		s.metrics.RecordChannelError(models.ChannelRadio, kind)
	}

	s.radioErr = cause
	s.radioErrSeq++
	seq := s.radioErrSeq
	if s.radioErrTimer != nil {
		s.radioErrTimer.Stop()
	}
	s.radioErrTimer = time.AfterFunc(s.cfg.ErrorTTL, func() {
		s.clearRadioError(seq)
	})

	if fatal && s.active != nil && s.active.channel == models.ChannelRadio {
		if s.active.cancel != nil {
			s.active.cancel()
		}
		if s.active.radio != nil {
			s.active.radio.Abort()
		}
		s.active.radio = nil
		s.active.cancel = nil
	}
}

// Finalize tears the session down from any state. It releases the
// camera, aborts the radio session and cancels pending feedback timers;
// calling it again is a no-op.
func (s *Session) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == models.SessionFinalized {
		return
	}

	s.releaseCameraLocked()
	s.abortRadioLocked()

	if s.feedbackTimer != nil {
		s.feedbackTimer.Stop()
		s.feedbackTimer = nil
	}
	if s.radioErrTimer != nil {
		s.radioErrTimer.Stop()
		s.radioErrTimer = nil
	}
	s.feedback = nil
	s.radioErr = ""
	s.state = models.SessionFinalized
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID            string
	Mode          models.AccessMode
	State         models.SessionState
	ActiveChannel *models.ScanChannel
	Device        *CameraDevice
	CameraMissing bool
	RadioError    string
	Feedback      *models.ScanFeedback
	Tally         []models.TallyEntry
}

// Snapshot returns a copy of the session's visible state. Expired
// feedback is filtered out even if its timer has not fired yet.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:            s.id,
		Mode:          s.mode,
		State:         s.state,
		CameraMissing: s.cameraMissing,
		RadioError:    s.radioErr,
		Tally:         append([]models.TallyEntry(nil), s.tally...),
	}
	if s.active != nil {
		channel := s.active.channel
		snap.ActiveChannel = &channel
		snap.Device = s.active.device
	}
	if s.feedback != nil && s.feedback.ExpiresAt.After(s.now().UTC()) {
		feedback := *s.feedback
		snap.Feedback = &feedback
	}
	return snap
}

func (s *Session) startCameraLocked(ctx context.Context) error {
	devices, err := s.camera.Enable(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrChannelPermission.Code, appErrors.ErrChannelPermission.Status, "camera access denied")
	}
	device, found := PickCameraDevice(devices)
	s.cameraMissing = !found
	s.active = &activeChannel{channel: models.ChannelCamera}
	if found {
		s.active.device = &device
	}
	s.state = models.SessionCameraLive
	return nil
}

func (s *Session) startRadioLocked(ctx context.Context) error {
	radioSession, err := s.radio.Open(ctx)
	if err != nil {
		return err
	}
	scanCtx, cancel := context.WithCancel(context.Background())
	s.active = &activeChannel{channel: models.ChannelRadio, radio: radioSession, cancel: cancel}
	s.state = models.SessionRadioLive
	s.radioErr = ""

	go s.runRadio(scanCtx, radioSession)
	return nil
}

// runRadio supervises the long-lived scan. It only returns on abort or a
// fatal hardware error; readings never flow through here.
func (s *Session) runRadio(ctx context.Context, radioSession RadioSession) {
	err := radioSession.Scan(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	s.logger.Warn("radio scan terminated", zap.Error(err))
	s.HandleRadioError(err.Error(), true)
}

func (s *Session) releaseCameraLocked() {
	if s.active == nil || s.active.channel != models.ChannelCamera {
		return
	}
	if err := s.camera.Disable(); err != nil {
		s.logger.Warn("failed to disable camera", zap.Error(err))
	}
	s.active = nil
}

func (s *Session) abortRadioLocked() {
	if s.active == nil || s.active.channel != models.ChannelRadio {
		return
	}
	if s.active.cancel != nil {
		s.active.cancel()
	}
	if s.active.radio != nil {
		s.active.radio.Abort()
	}
	s.active = nil
}

// forwardLocked pushes one decoded token through the registrar and turns
// the result into feedback. Duplicate suppression is deliberately silent:
// no flash, no tally entry.
func (s *Session) forwardLocked(ctx context.Context, token string, channel models.ScanChannel) {
	now := s.now().UTC()
	s.lastActivity = now

	result, err := s.registrar.Register(ctx, token, s.mode, &s.operator)
	if err != nil {
		appErr := appErrors.FromError(err)
		s.logger.Error("registration failed", zap.String("channel", string(channel)), zap.Error(err))
		s.showFeedbackLocked(models.ScanFeedback{
			Success: false,
			Message: appErr.Message,
			Channel: channel,
		})
		return
	}

	if result.Duplicate {
		return
	}

	feedback := models.ScanFeedback{
		Success: result.Success,
		Message: result.Message,
		Channel: channel,
	}
	if result.Person != nil {
		feedback.Name = result.Person.FullName
		feedback.Label = result.Person.Label
	}
	s.showFeedbackLocked(feedback)

	if result.Success {
		entry := models.TallyEntry{
			Name:    feedback.Name,
			Time:    now,
			Success: true,
			Channel: channel,
		}
		s.tally = append([]models.TallyEntry{entry}, s.tally...)
		if len(s.tally) > s.cfg.TallyLimit {
			s.tally = s.tally[:s.cfg.TallyLimit]
		}
	}
}

func (s *Session) showFeedbackLocked(feedback models.ScanFeedback) {
	now := s.now().UTC()
	feedback.ShownAt = now
	feedback.ExpiresAt = now.Add(s.cfg.FeedbackTTL)
	s.feedback = &feedback

	s.feedbackSeq++
	seq := s.feedbackSeq
	if s.feedbackTimer != nil {
		s.feedbackTimer.Stop()
	}
	s.feedbackTimer = time.AfterFunc(s.cfg.FeedbackTTL, func() {
		s.clearFeedback(seq)
	})
}

func (s *Session) clearFeedback(seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feedbackSeq == seq {
		s.feedback = nil
	}
}

func (s *Session) clearRadioError(seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.radioErrSeq == seq {
		s.radioErr = ""
	}
}
