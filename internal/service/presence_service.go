package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gate-api/internal/models"
	appErrors "github.com/noah-isme/sma-gate-api/pkg/errors"
)

type dayEventLister interface {
	ListForDay(ctx context.Context, date time.Time) ([]models.AccessEvent, error)
}

type populationCounter interface {
	CountActive(ctx context.Context, category models.PersonCategory) (int, error)
}

// PresenceServiceConfig tunes summary derivation.
type PresenceServiceConfig struct {
	CacheTTL time.Duration
	// ExpectedStudents / ExpectedStaff override the directory-derived
	// population when positive.
	ExpectedStudents int
	ExpectedStaff    int
}

// PresenceService derives daily presence aggregates from the access event
// log. "Inside" is never a stored flag; it is recomputed from same-day
// entries minus same-day leaving events on every call.
type PresenceService struct {
	events     dayEventLister
	population populationCounter
	cache      *CacheService
	logger     *zap.Logger
	cfg        PresenceServiceConfig
}

// NewPresenceService constructs a PresenceService.
func NewPresenceService(events dayEventLister, population populationCounter, cache *CacheService, logger *zap.Logger, cfg PresenceServiceConfig) *PresenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	return &PresenceService{
		events:     events,
		population: population,
		cache:      cache,
		logger:     logger,
		cfg:        cfg,
	}
}

// DaySummary computes the aggregates for one calendar day. The second
// return value reports cache utilisation.
func (s *PresenceService) DaySummary(ctx context.Context, date time.Time) (*models.DaySummary, bool, error) {
	key := summaryCacheKey(date)
	if s.cache != nil {
		var cached models.DaySummary
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	events, err := s.events.ListForDay(ctx, date)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load day events")
	}

	summary := s.derive(date, events)

	expected, err := s.expectedStudents(ctx)
	if err != nil {
		s.logger.Warn("failed to derive expected population", zap.Error(err))
	} else {
		entered := distinctEntrants(events, models.CategoryStudent)
		if absent := expected - entered; absent > 0 {
			summary.AbsentEstimate = absent
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache day summary", zap.Error(err))
		}
	}
	return summary, false, nil
}

// ExpectedPopulation exposes the roster figures backing the absent
// estimate, for dashboard display.
func (s *PresenceService) ExpectedPopulation(ctx context.Context) (students, staff int, err error) {
	students, err = s.expectedStudents(ctx)
	if err != nil {
		return 0, 0, err
	}
	staff = s.cfg.ExpectedStaff
	if staff <= 0 && s.population != nil {
		staff, err = s.population.CountActive(ctx, models.CategoryStaff)
		if err != nil {
			return 0, 0, err
		}
	}
	return students, staff, nil
}

// InvalidateDay drops the cached summary for the given day. Called after
// every successful registration.
func (s *PresenceService) InvalidateDay(ctx context.Context, date time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, summaryCacheKey(date)); err != nil {
		s.logger.Warn("failed to invalidate day summary cache", zap.Error(err))
	}
}

func (s *PresenceService) expectedStudents(ctx context.Context) (int, error) {
	if s.cfg.ExpectedStudents > 0 {
		return s.cfg.ExpectedStudents, nil
	}
	if s.population == nil {
		return 0, nil
	}
	return s.population.CountActive(ctx, models.CategoryStudent)
}

// derive partitions the day's events by mode and computes the inside sets.
// A person is inside when they have an entry that day and no leaving event
// that day. The match is same-calendar-day only; an entry before midnight
// paired with an exit after it counts the person inside on day one and
// outside-only on day two.
func (s *PresenceService) derive(date time.Time, events []models.AccessEvent) *models.DaySummary {
	summary := &models.DaySummary{Date: date.Format("2006-01-02")}

	entered := map[models.PersonCategory]map[string]struct{}{
		models.CategoryStudent: {},
		models.CategoryStaff:   {},
	}
	left := map[models.PersonCategory]map[string]struct{}{
		models.CategoryStudent: {},
		models.CategoryStaff:   {},
	}

	for _, event := range events {
		switch event.Mode {
		case models.ModeEntry:
			summary.Entries++
		case models.ModePickup:
			summary.Pickups++
		case models.ModeExit:
			summary.Exits++
		}

		byCategory, ok := entered[event.Category]
		if !ok {
			continue
		}
		if event.Mode == models.ModeEntry {
			byCategory[event.Identifier] = struct{}{}
		} else if event.Mode.Leaving() {
			left[event.Category][event.Identifier] = struct{}{}
		}
	}

	summary.StudentsInside = insideCount(entered[models.CategoryStudent], left[models.CategoryStudent])
	summary.StaffInside = insideCount(entered[models.CategoryStaff], left[models.CategoryStaff])
	return summary
}

func insideCount(entered, left map[string]struct{}) int {
	count := 0
	for identifier := range entered {
		if _, gone := left[identifier]; !gone {
			count++
		}
	}
	return count
}

func distinctEntrants(events []models.AccessEvent, category models.PersonCategory) int {
	seen := map[string]struct{}{}
	for _, event := range events {
		if event.Mode == models.ModeEntry && event.Category == category {
			seen[event.Identifier] = struct{}{}
		}
	}
	return len(seen)
}

func summaryCacheKey(date time.Time) string {
	return fmt.Sprintf("gate:summary:%s", date.Format("2006-01-02"))
}
