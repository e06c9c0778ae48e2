package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gate-api/internal/models"
	"github.com/noah-isme/sma-gate-api/internal/repository"
	appErrors "github.com/noah-isme/sma-gate-api/pkg/errors"
	"github.com/noah-isme/sma-gate-api/pkg/storage"
)

type memoryReportStore struct {
	mu   sync.Mutex
	jobs map[string]*models.ReportJob
	seq  int
}

func newMemoryReportStore() *memoryReportStore {
	return &memoryReportStore{jobs: map[string]*models.ReportJob{}}
}

func (m *memoryReportStore) Create(ctx context.Context, job *models.ReportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		m.seq++
		job.ID = fmt.Sprintf("job-%d", m.seq)
	}
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memoryReportStore) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *memoryReportStore) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *memoryReportStore) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	queued := make([]models.ReportJob, 0)
	for _, job := range m.jobs {
		if job.Status == models.ReportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

type fakeSummarizer struct {
	summary models.DaySummary
}

func (f *fakeSummarizer) DaySummary(ctx context.Context, date time.Time) (*models.DaySummary, bool, error) {
	copied := f.summary
	return &copied, false, nil
}

func newReportFixture(t *testing.T, events *fakeDayEvents) (*ReportService, *memoryReportStore) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	reports := newMemoryReportStore()
	svc := NewReportService(ReportServiceParams{
		Reports:  reports,
		Events:   events,
		Presence: &fakeSummarizer{summary: models.DaySummary{Date: "2026-03-10", Entries: 2}},
		Store:    store,
		Signer:   storage.NewSignedURLSigner("report-secret", time.Hour),
	})
	return svc, reports
}

func TestReportServiceLifecycle(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	registeredBy := "Portería"
	events := &fakeDayEvents{events: []models.AccessEvent{
		{
			Identifier: "STU-a3f9b1c2d4e5",
			Mode:       models.ModeEntry,
			PersonSnapshot: models.PersonSnapshot{
				PersonID: "p-1",
				Category: models.CategoryStudent,
				FullName: "Sofía Martínez López",
				Label:    "3B",
			},
			RegisteredByName: &registeredBy,
			Active:           true,
			RecordedAt:       day.Add(7*time.Hour + 15*time.Minute),
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, _ := newReportFixture(t, events)
	svc.Start(ctx)
	defer svc.Stop()

	job, err := svc.Request(ctx, day, models.ReportFormatCSV, "op-1")
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, models.ReportStatusQueued, job.Status)

	require.Eventually(t, func() bool {
		current, err := svc.GetStatus(ctx, job.ID)
		return err == nil && current.Status == models.ReportStatusFinished
	}, 2*time.Second, 10*time.Millisecond)

	finished, err := svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, finished.ResultURL)
	require.NotNil(t, finished.FinishedAt)

	token := strings.TrimPrefix(*finished.ResultURL, "/api/v1/reports/download/")
	file, name, err := svc.ResolveDownload(token)
	require.NoError(t, err)
	defer file.Close()

	assert.Contains(t, name, "gate-report-")
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Sofía Martínez López")
	assert.Contains(t, string(content), "ENTRY")
}

func TestReportServiceRejectsUnknownFormat(t *testing.T) {
	svc, _ := newReportFixture(t, &fakeDayEvents{})

	_, err := svc.Request(context.Background(), time.Now(), "xlsx", "op-1")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReportServiceGetStatusNotFound(t *testing.T) {
	svc, _ := newReportFixture(t, &fakeDayEvents{})

	_, err := svc.GetStatus(context.Background(), "missing")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReportServiceResolveDownloadRejectsBadToken(t *testing.T) {
	svc, _ := newReportFixture(t, &fakeDayEvents{})

	_, _, err := svc.ResolveDownload("not-a-token")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReportServiceRecoversQueuedJobs(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	svc, reports := newReportFixture(t, &fakeDayEvents{})

	stale := &models.ReportJob{
		Date:      day,
		Format:    models.ReportFormatCSV,
		Status:    models.ReportStatusQueued,
		CreatedAt: day,
	}
	require.NoError(t, reports.Create(context.Background(), stale))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	require.Eventually(t, func() bool {
		current, err := svc.GetStatus(ctx, stale.ID)
		return err == nil && current.Status == models.ReportStatusFinished
	}, 2*time.Second, 10*time.Millisecond)
}
