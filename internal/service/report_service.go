package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gate-api/internal/models"
	"github.com/noah-isme/sma-gate-api/internal/repository"
	appErrors "github.com/noah-isme/sma-gate-api/pkg/errors"
	"github.com/noah-isme/sma-gate-api/pkg/export"
	"github.com/noah-isme/sma-gate-api/pkg/jobs"
)

type reportStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
}

type daySummarizer interface {
	DaySummary(ctx context.Context, date time.Time) (*models.DaySummary, bool, error)
}

type reportFileStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type downloadSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error)
}

const reportJobType = "daily_gate_report"

// ReportService generates daily gate reports asynchronously. A request
// creates a job row and enqueues it; workers render the day's log plus
// its summary into CSV or PDF, store the file and attach a signed
// download token to the job.
type ReportService struct {
	reports  reportStore
	events   dayEventLister
	presence daySummarizer
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	store    reportFileStore
	signer   downloadSigner
	queue    *jobs.Queue
	logger   *zap.Logger
	now      func() time.Time
}

// ReportServiceParams groups constructor dependencies.
type ReportServiceParams struct {
	Reports  reportStore
	Events   dayEventLister
	Presence daySummarizer
	Store    reportFileStore
	Signer   downloadSigner
	Logger   *zap.Logger
	Now      func() time.Time

	WorkerConcurrency int
	WorkerRetries     int
}

// NewReportService constructs the service and its worker queue. Call
// Start before requesting reports.
func NewReportService(params ReportServiceParams) *ReportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	s := &ReportService{
		reports:  params.Reports,
		events:   params.Events,
		presence: params.Presence,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		store:    params.Store,
		signer:   params.Signer,
		logger:   logger,
		now:      now,
	}
	s.queue = jobs.NewQueue("reports", s.process, jobs.QueueConfig{
		Workers:    params.WorkerConcurrency,
		MaxRetries: params.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the worker pool and requeues jobs left over from a
// previous run.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	s.recoverQueued(ctx)
}

// Stop drains the worker pool.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// Request creates a report job for one calendar day and schedules it.
func (s *ReportService) Request(ctx context.Context, date time.Time, format models.ReportFormat, createdBy string) (*models.ReportJob, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}

	job := &models.ReportJob{
		Date:      date,
		Format:    format,
		Status:    models.ReportStatusQueued,
		CreatedBy: createdBy,
		CreatedAt: s.now().UTC(),
	}
	if err := s.reports.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: reportJobType, Payload: job.ID}); err != nil {
		s.markFailed(ctx, job.ID, "scheduling failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule report job")
	}

	s.logger.Info("report job queued",
		zap.String("job_id", job.ID),
		zap.String("date", date.Format("2006-01-02")),
		zap.String("format", string(format)))
	return job, nil
}

// GetStatus returns a job row by id.
func (s *ReportService) GetStatus(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.reports.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	return job, nil
}

// ResolveDownload validates a signed token and opens the stored file.
func (s *ReportService) ResolveDownload(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report file not found")
	}
	return file, relPath, nil
}

// StartCleanup periodically removes stored report files older than ttl.
func (s *ReportService) StartCleanup(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.store.CleanupOlderThan(ttl)
				if err != nil {
					s.logger.Warn("report cleanup failed", zap.Error(err))
					continue
				}
				if len(deleted) > 0 {
					s.logger.Info("expired report files removed", zap.Int("count", len(deleted)))
				}
			}
		}
	}()
}

func (s *ReportService) recoverQueued(ctx context.Context) {
	queued, err := s.reports.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued report jobs", zap.Error(err))
		return
	}
	for _, job := range queued {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: reportJobType, Payload: job.ID}); err != nil {
			s.logger.Warn("failed to requeue report job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if len(queued) > 0 {
		s.logger.Info("recovered queued report jobs", zap.Int("count", len(queued)))
	}
}

func (s *ReportService) process(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok || id == "" {
		s.logger.Error("report job carries no id", zap.String("job_id", job.ID))
		return nil
	}

	row, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", id, err)
	}
	if row.Status == models.ReportStatusFinished {
		return nil
	}

	processing := models.ReportStatusProcessing
	if err := s.reports.Update(ctx, id, repository.UpdateReportJobParams{Status: &processing}); err != nil {
		return fmt.Errorf("mark report job processing: %w", err)
	}

	relPath, err := s.generate(ctx, row)
	if err != nil {
		s.markFailed(ctx, id, err.Error())
		return fmt.Errorf("generate report %s: %w", id, err)
	}

	token, _, err := s.signer.Generate(id, relPath)
	if err != nil {
		s.markFailed(ctx, id, "failed to sign download url")
		return fmt.Errorf("sign report %s: %w", id, err)
	}

	finished := models.ReportStatusFinished
	resultURL := "/api/v1/reports/download/" + token
	finishedAt := s.now().UTC()
	if err := s.reports.Update(ctx, id, repository.UpdateReportJobParams{
		Status:     &finished,
		ResultURL:  &resultURL,
		FinishedAt: &finishedAt,
	}); err != nil {
		return fmt.Errorf("finish report job %s: %w", id, err)
	}

	s.logger.Info("report job finished", zap.String("job_id", id), zap.String("file", relPath))
	return nil
}

func (s *ReportService) generate(ctx context.Context, job *models.ReportJob) (string, error) {
	events, err := s.events.ListForDay(ctx, job.Date)
	if err != nil {
		return "", fmt.Errorf("list day events: %w", err)
	}
	summary, _, err := s.presence.DaySummary(ctx, job.Date)
	if err != nil {
		return "", fmt.Errorf("derive day summary: %w", err)
	}

	dataset := buildReportDataset(events, summary)
	day := job.Date.Format("2006-01-02")

	var data []byte
	switch job.Format {
	case models.ReportFormatCSV:
		data, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		data, err = s.pdf.Render(dataset, "Gate report "+day)
	default:
		return "", fmt.Errorf("unsupported format %q", job.Format)
	}
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	filename := fmt.Sprintf("daily/%s/gate-report-%s.%s", day, job.ID, job.Format)
	if _, err := s.store.Save(filename, data); err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	return filename, nil
}

func (s *ReportService) markFailed(ctx context.Context, id, message string) {
	failed := models.ReportStatusFailed
	finishedAt := s.now().UTC()
	if err := s.reports.Update(ctx, id, repository.UpdateReportJobParams{
		Status:       &failed,
		ErrorMessage: &message,
		FinishedAt:   &finishedAt,
	}); err != nil {
		s.logger.Error("failed to mark report job failed", zap.String("job_id", id), zap.Error(err))
	}
}

var reportHeaders = []string{"Time", "Mode", "Name", "Category", "Label", "Identifier", "Registered By"}

func buildReportDataset(events []models.AccessEvent, summary *models.DaySummary) export.Dataset {
	rows := make([]map[string]string, 0, len(events)+1)
	for _, event := range events {
		registeredBy := ""
		if event.RegisteredByName != nil {
			registeredBy = *event.RegisteredByName
		}
		rows = append(rows, map[string]string{
			"Time":          event.RecordedAt.Format("15:04:05"),
			"Mode":          string(event.Mode),
			"Name":          event.FullName,
			"Category":      string(event.Category),
			"Label":         event.Label,
			"Identifier":    event.Identifier,
			"Registered By": registeredBy,
		})
	}
	if summary != nil {
		rows = append(rows, map[string]string{
			"Time": "TOTAL",
			"Mode": fmt.Sprintf("E:%d P:%d X:%d", summary.Entries, summary.Pickups, summary.Exits),
			"Name": fmt.Sprintf("inside students=%d staff=%d", summary.StudentsInside, summary.StaffInside),
		})
	}
	return export.Dataset{Headers: reportHeaders, Rows: rows}
}
