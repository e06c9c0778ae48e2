package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gate-api/internal/dto"
	"github.com/noah-isme/sma-gate-api/internal/models"
	appErrors "github.com/noah-isme/sma-gate-api/pkg/errors"
)

type reportSchedulerMock struct {
	job         *models.ReportJob
	requestErr  error
	statusErr   error
	file        string
	downloadErr error
	lastFormat  models.ReportFormat
}

func (m *reportSchedulerMock) Request(ctx context.Context, date time.Time, format models.ReportFormat, createdBy string) (*models.ReportJob, error) {
	m.lastFormat = format
	return m.job, m.requestErr
}

func (m *reportSchedulerMock) GetStatus(ctx context.Context, id string) (*models.ReportJob, error) {
	return m.job, m.statusErr
}

func (m *reportSchedulerMock) ResolveDownload(token string) (*os.File, string, error) {
	if m.downloadErr != nil {
		return nil, "", m.downloadErr
	}
	file, err := os.Open(m.file)
	if err != nil {
		return nil, "", err
	}
	return file, filepath.Base(m.file), nil
}

func TestReportHandlerGenerate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &reportSchedulerMock{job: &models.ReportJob{ID: "job-1", Status: models.ReportStatusQueued}}
	handler := NewReportHandler(mock)

	payload, _ := json.Marshal(dto.ReportRequest{Date: "2026-03-10", Format: "CSV"})
	c, w := newGinContext(http.MethodPost, "/reports", payload)
	handler.Generate(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "job-1")
	assert.Equal(t, models.ReportFormatCSV, mock.lastFormat)
}

func TestReportHandlerGenerateRejectsBadDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportSchedulerMock{})

	payload, _ := json.Marshal(dto.ReportRequest{Date: "03/10/2026", Format: "csv"})
	c, w := newGinContext(http.MethodPost, "/reports", payload)
	handler.Generate(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	url := "/api/v1/reports/download/tok"
	mock := &reportSchedulerMock{job: &models.ReportJob{ID: "job-1", Status: models.ReportStatusFinished, ResultURL: &url}}
	handler := NewReportHandler(mock)

	c, w := newGinContext(http.MethodGet, "/reports/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	handler.Status(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "FINISHED")
}

func TestReportHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "gate-report.csv")
	require.NoError(t, os.WriteFile(path, []byte("Time,Mode\n07:15:00,ENTRY\n"), 0o644))
	handler := NewReportHandler(&reportSchedulerMock{file: path})

	c, w := newGinContext(http.MethodGet, "/reports/download/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "ENTRY")
}

func TestReportHandlerDownloadRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportSchedulerMock{downloadErr: appErrors.ErrForbidden})

	c, w := newGinContext(http.MethodGet, "/reports/download/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}
	handler.Download(c)

	require.Equal(t, http.StatusForbidden, w.Code)
}
