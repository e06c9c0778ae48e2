package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gate-api/internal/dto"
	"github.com/noah-isme/sma-gate-api/internal/models"
	appErrors "github.com/noah-isme/sma-gate-api/pkg/errors"
	"github.com/noah-isme/sma-gate-api/pkg/response"
)

const dateLayout = "2006-01-02"

type accessLog interface {
	List(ctx context.Context, filter models.AccessEventFilter) ([]models.AccessEvent, int, error)
	Deactivate(ctx context.Context, id int64) error
}

type presenceReader interface {
	DaySummary(ctx context.Context, date time.Time) (*models.DaySummary, bool, error)
	ExpectedPopulation(ctx context.Context) (students, staff int, err error)
}

// LogHandler exposes the access event log and its daily aggregates.
type LogHandler struct {
	logs     accessLog
	presence presenceReader
	now      func() time.Time
}

// NewLogHandler constructs LogHandler.
func NewLogHandler(logs accessLog, presence presenceReader, now func() time.Time) *LogHandler {
	if now == nil {
		now = time.Now
	}
	return &LogHandler{logs: logs, presence: presence, now: now}
}

// Today godoc
// @Summary Today's access events
// @Tags Logs
// @Produce json
// @Param mode query string false "Filter by access mode"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /logs/today [get]
func (h *LogHandler) Today(c *gin.Context) {
	filter, err := h.bindFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	today := h.now().UTC()
	filter.Date = &today
	filter.ActiveOnly = true

	h.list(c, *filter)
}

// List godoc
// @Summary Access events for any day
// @Tags Logs
// @Produce json
// @Param date query string false "Day (YYYY-MM-DD)"
// @Param mode query string false "Filter by access mode"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /logs [get]
func (h *LogHandler) List(c *gin.Context) {
	filter, err := h.bindFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.ActiveOnly = true

	h.list(c, *filter)
}

// Summary godoc
// @Summary Daily presence aggregates
// @Tags Logs
// @Produce json
// @Param date query string false "Day (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /logs/summary [get]
func (h *LogHandler) Summary(c *gin.Context) {
	date := h.now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	summary, cached, err := h.presence.DaySummary(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	students, staff, err := h.presence.ExpectedPopulation(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.DaySummaryResponse{
		DaySummary:       *summary,
		ExpectedStudents: students,
		ExpectedStaff:    staff,
	}
	response.JSON(c, http.StatusOK, resp, nil, map[string]interface{}{"cache": cached})
}

// Delete godoc
// @Summary Soft-delete one access event
// @Tags Logs
// @Param id path int true "Event ID"
// @Success 204
// @Router /logs/{id} [delete]
func (h *LogHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid event id"))
		return
	}

	if err := h.logs.Deactivate(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "access event not found"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete access event"))
		return
	}
	response.NoContent(c)
}

func (h *LogHandler) bindFilter(c *gin.Context) (*models.AccessEventFilter, error) {
	var query dto.AccessLogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query")
	}

	filter := models.AccessEventFilter{Page: query.Page, PageSize: query.PageSize}
	if query.Mode != "" {
		mode := models.AccessMode(strings.ToUpper(query.Mode))
		if !mode.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown access mode")
		}
		filter.Mode = &mode
	}
	if query.Date != "" {
		date, err := time.Parse(dateLayout, query.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
		}
		filter.Date = &date
	}
	return &filter, nil
}

func (h *LogHandler) list(c *gin.Context, filter models.AccessEventFilter) {
	events, total, err := h.logs.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list access events"))
		return
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 100
	}
	response.JSON(c, http.StatusOK, events, &models.Pagination{
		Page:       page,
		PageSize:   size,
		TotalCount: total,
	})
}
