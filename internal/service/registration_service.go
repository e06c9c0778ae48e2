package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gate-api/internal/models"
	appErrors "github.com/noah-isme/sma-gate-api/pkg/errors"
)

// Audit device descriptors are free text from stations; anything longer
// is truncated before persisting.
const maxDeviceInfoLen = 100

type identifierDirectory interface {
	ResolveBadge(ctx context.Context, identifier string) (*models.Person, error)
}

type accessEventAppender interface {
	Append(ctx context.Context, event *models.AccessEvent) error
}

type duplicateGuard interface {
	Check(identifier string, now time.Time) (bool, time.Duration)
	Forget(identifier string)
}

type summaryInvalidator interface {
	InvalidateDay(ctx context.Context, date time.Time)
}

// RegistrationService turns a resolved badge scan into a durable access
// event. It is safe for concurrent use by independent scan sessions.
type RegistrationService struct {
	directory identifierDirectory
	log       accessEventAppender
	guard     duplicateGuard
	presence  summaryInvalidator
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// RegistrationServiceParams groups constructor dependencies.
type RegistrationServiceParams struct {
	Directory identifierDirectory
	Log       accessEventAppender
	Guard     duplicateGuard
	Presence  summaryInvalidator
	Metrics   *MetricsService
	Logger    *zap.Logger
	Now       func() time.Time
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(params RegistrationServiceParams) *RegistrationService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &RegistrationService{
		directory: params.Directory,
		log:       params.Log,
		guard:     params.Guard,
		presence:  params.Presence,
		metrics:   params.Metrics,
		logger:    logger,
		now:       now,
	}
}

// Register resolves the identifier, consults the dedup guard and, for a
// first sighting of a known badge, appends one event. A duplicate or an
// unrecognised identifier is a reported outcome, not an error; only
// contract violations and infrastructure failures return one.
func (s *RegistrationService) Register(ctx context.Context, identifier string, mode models.AccessMode, operator *models.OperatorContext) (*models.RegistrationResult, error) {
	if identifier == "" {
		return nil, appErrors.ErrEmptyIdentifier
	}
	if !mode.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown access mode %q", mode))
	}

	now := s.now().UTC()
	duplicate, since := s.guard.Check(identifier, now)

	// Resolve even when suppressed so the station can still show who was
	// scanned.
	person, err := s.directory.ResolveBadge(ctx, identifier)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.guard.Forget(identifier)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve identifier")
		}
		person = nil
	}

	if duplicate {
		if s.metrics != nil {
			s.metrics.RecordRegistration(mode, "duplicate")
		}
		result := &models.RegistrationResult{
			Success:   true,
			Duplicate: true,
			Message:   "already registered recently",
		}
		if person != nil {
			snap := person.Snapshot()
			result.Person = &snap
		}
		s.logger.Debug("duplicate scan suppressed",
			zap.String("identifier", identifier),
			zap.Duration("since_last", since),
		)
		return result, nil
	}

	if person == nil {
		if s.metrics != nil {
			s.metrics.RecordRegistration(mode, "unrecognized")
		}
		return &models.RegistrationResult{
			Success:   false,
			Duplicate: false,
			Message:   "identifier not recognized",
		}, nil
	}

	snap := person.Snapshot()
	event := &models.AccessEvent{
		Identifier:     identifier,
		Mode:           mode,
		PersonSnapshot: snap,
		Active:         true,
		RecordedAt:     now,
	}
	if operator != nil {
		if operator.OperatorID != "" {
			id := operator.OperatorID
			name := operator.OperatorName
			event.RegisteredBy = &id
			event.RegisteredByName = &name
		}
		if operator.DeviceInfo != "" {
			device := truncate(operator.DeviceInfo, maxDeviceInfoLen)
			event.DeviceInfo = &device
		}
	}

	if err := s.log.Append(ctx, event); err != nil {
		// Drop the sighting so the retry after a store outage is not
		// swallowed as a duplicate of this failed attempt.
		s.guard.Forget(identifier)
		if s.metrics != nil {
			s.metrics.RecordRegistration(mode, "failed")
		}
		s.logger.Error("failed to append access event",
			zap.String("identifier", identifier),
			zap.String("mode", string(mode)),
			zap.Error(err),
		)
		return nil, appErrors.Wrap(err, appErrors.ErrLogWrite.Code, appErrors.ErrLogWrite.Status, appErrors.ErrLogWrite.Message)
	}

	if s.presence != nil {
		s.presence.InvalidateDay(ctx, now)
	}
	if s.metrics != nil {
		s.metrics.RecordRegistration(mode, "registered")
	}

	return &models.RegistrationResult{
		Success:   true,
		Duplicate: false,
		Person:    &snap,
		Event:     event,
		Message:   fmt.Sprintf("%s registered: %s", mode, snap.FullName),
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
