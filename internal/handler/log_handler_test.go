package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gate-api/internal/models"
	appErrors "github.com/noah-isme/sma-gate-api/pkg/errors"
	"github.com/noah-isme/sma-gate-api/pkg/response"
)

type accessLogMock struct {
	events     []models.AccessEvent
	total      int
	listErr    error
	lastFilter models.AccessEventFilter
	deleteErr  error
	deleted    []int64
}

func (m *accessLogMock) List(ctx context.Context, filter models.AccessEventFilter) ([]models.AccessEvent, int, error) {
	m.lastFilter = filter
	return m.events, m.total, m.listErr
}

func (m *accessLogMock) Deactivate(ctx context.Context, id int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

type presenceMock struct {
	summary  models.DaySummary
	cached   bool
	students int
	staff    int
}

func (m *presenceMock) DaySummary(ctx context.Context, date time.Time) (*models.DaySummary, bool, error) {
	copied := m.summary
	return &copied, m.cached, nil
}

func (m *presenceMock) ExpectedPopulation(ctx context.Context) (int, int, error) {
	return m.students, m.staff, nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func TestLogHandlerToday(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := &accessLogMock{events: []models.AccessEvent{{ID: 1, Identifier: "STU-a", Mode: models.ModeEntry}}, total: 1}
	handler := NewLogHandler(logs, &presenceMock{}, fixedNow)

	c, w := newGinContext(http.MethodGet, "/logs/today?mode=entry", nil)
	handler.Today(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, logs.lastFilter.Date)
	assert.Equal(t, fixedNow(), *logs.lastFilter.Date)
	assert.True(t, logs.lastFilter.ActiveOnly)
	require.NotNil(t, logs.lastFilter.Mode)
	assert.Equal(t, models.ModeEntry, *logs.lastFilter.Mode)
}

func TestLogHandlerListRejectsBadDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLogHandler(&accessLogMock{}, &presenceMock{}, fixedNow)

	c, w := newGinContext(http.MethodGet, "/logs?date=10-03-2026", nil)
	handler.List(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogHandlerListRejectsUnknownMode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLogHandler(&accessLogMock{}, &presenceMock{}, fixedNow)

	c, w := newGinContext(http.MethodGet, "/logs?mode=lunch", nil)
	handler.List(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogHandlerSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	presence := &presenceMock{
		summary:  models.DaySummary{Date: "2026-03-10", Entries: 12, StudentsInside: 10},
		students: 120,
		staff:    15,
	}
	handler := NewLogHandler(&accessLogMock{}, presence, fixedNow)

	c, w := newGinContext(http.MethodGet, "/logs/summary", nil)
	handler.Summary(c)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	payload, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"entries":12`)
	assert.Contains(t, string(payload), `"expected_students":120`)
}

func TestLogHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := &accessLogMock{}
	handler := NewLogHandler(logs, &presenceMock{}, fixedNow)

	c, w := newGinContext(http.MethodDelete, "/logs/7", nil)
	c.Params = gin.Params{{Key: "id", Value: "7"}}
	handler.Delete(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []int64{7}, logs.deleted)
}

func TestLogHandlerDeleteInvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLogHandler(&accessLogMock{}, &presenceMock{}, fixedNow)

	c, w := newGinContext(http.MethodDelete, "/logs/abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	handler.Delete(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogHandlerListFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := &accessLogMock{listErr: appErrors.ErrInternal}
	handler := NewLogHandler(logs, &presenceMock{}, fixedNow)

	c, w := newGinContext(http.MethodGet, "/logs", nil)
	handler.List(c)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}
