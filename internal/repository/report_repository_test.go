package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gate-api/internal/models"
)

func newReportMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestReportRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newReportMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectExec("INSERT INTO report_jobs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.ReportJob{
		Date:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Format:    models.ReportFormatCSV,
		CreatedBy: "op-1",
	}
	err := repo.Create(context.Background(), job)

	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newReportMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	rows := sqlmock.NewRows([]string{"id", "report_date", "format", "status", "result_url", "created_by", "created_at", "finished_at", "error_message"}).
		AddRow("job-1", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), "csv", "QUEUED", nil, "op-1", time.Now(), nil, nil)
	mock.ExpectQuery("SELECT (.+) FROM report_jobs WHERE id = \\$1").
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "job-1")

	require.NoError(t, err)
	assert.Equal(t, models.ReportFormatCSV, job.Format)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newReportMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	status := models.ReportStatusFinished
	url := "/api/v1/reports/download/tok"
	finishedAt := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE report_jobs SET status = \\$1, result_url = \\$2, finished_at = \\$3 WHERE id = \\$4").
		WithArgs(status, url, finishedAt, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateReportJobParams{
		Status:     &status,
		ResultURL:  &url,
		FinishedAt: &finishedAt,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryListQueued(t *testing.T) {
	db, mock, cleanup := newReportMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	rows := sqlmock.NewRows([]string{"id", "report_date", "format", "status", "result_url", "created_by", "created_at", "finished_at", "error_message"}).
		AddRow("job-1", time.Now(), "pdf", "QUEUED", nil, "op-1", time.Now(), nil, nil)
	mock.ExpectQuery("SELECT (.+) FROM report_jobs WHERE status = 'QUEUED'").
		WithArgs(20).
		WillReturnRows(rows)

	jobs, err := repo.ListQueued(context.Background(), 0)

	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
