package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gate-api/internal/dto"
	"github.com/noah-isme/sma-gate-api/internal/models"
	"github.com/noah-isme/sma-gate-api/internal/scanner"
	appErrors "github.com/noah-isme/sma-gate-api/pkg/errors"
	"github.com/noah-isme/sma-gate-api/pkg/response"
)

// SessionHandler exposes the scan session lifecycle to stations. A
// station opens one session per registration mode, pushes decoded camera
// frames and NFC readings into it, and polls the snapshot for feedback
// and the running tally.
type SessionHandler struct {
	sessions *scanner.SessionManager
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions *scanner.SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Start godoc
// @Summary Open a scan session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.StartSessionRequest true "Session parameters"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Start(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	mode := models.AccessMode(strings.ToUpper(req.Mode))
	channel := models.ChannelCamera
	if req.Channel != "" {
		channel = models.ScanChannel(strings.ToUpper(req.Channel))
	}

	session, err := h.sessions.Create(c.Request.Context(), mode, channel, operatorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sessionResponse(session.Snapshot()))
}

// Get godoc
// @Summary Session snapshot
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessionResponse(session.Snapshot()), nil)
}

// SwitchChannel godoc
// @Summary Switch the active input channel
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.SwitchChannelRequest true "Target channel"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/channel [post]
func (h *SessionHandler) SwitchChannel(c *gin.Context) {
	session, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.SwitchChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := session.SwitchTo(c.Request.Context(), models.ScanChannel(strings.ToUpper(req.Channel))); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessionResponse(session.Snapshot()), nil)
}

// CameraToken godoc
// @Summary Push one decoded camera frame
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.CameraTokenRequest true "Decoded frame text"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/tokens [post]
func (h *SessionHandler) CameraToken(c *gin.Context) {
	session, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.CameraTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := session.HandleCameraText(c.Request.Context(), req.Text); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessionResponse(session.Snapshot()), nil)
}

// RadioReading godoc
// @Summary Push one NFC tag reading
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.RadioReadingRequest true "Tag records"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/readings [post]
func (h *SessionHandler) RadioReading(c *gin.Context) {
	session, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.RadioReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	records := make([]models.RadioRecord, 0, len(req.Records))
	for _, record := range req.Records {
		records = append(records, models.RadioRecord{
			Type: models.RadioRecordType(strings.ToLower(record.Type)),
			Data: []byte(record.Data),
		})
	}

	if err := session.HandleRadioReading(c.Request.Context(), records); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessionResponse(session.Snapshot()), nil)
}

// RadioError godoc
// @Summary Report a radio failure
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.RadioErrorRequest true "Failure report"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/errors [post]
func (h *SessionHandler) RadioError(c *gin.Context) {
	session, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.RadioErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	session.HandleRadioError(req.Cause, req.Fatal)
	response.JSON(c, http.StatusOK, sessionResponse(session.Snapshot()), nil)
}

// Finalize godoc
// @Summary Close a scan session
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Finalize(c *gin.Context) {
	if err := h.sessions.Finalize(c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func sessionResponse(snap scanner.Snapshot) dto.SessionResponse {
	resp := dto.SessionResponse{
		ID:            snap.ID,
		Mode:          snap.Mode,
		State:         snap.State,
		ActiveChannel: snap.ActiveChannel,
		CameraMissing: snap.CameraMissing,
		RadioError:    snap.RadioError,
		Feedback:      snap.Feedback,
		Tally:         snap.Tally,
	}
	if resp.Tally == nil {
		resp.Tally = []models.TallyEntry{}
	}
	return resp
}
