package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hray3182/GeoNudge/internal/errs"
	"github.com/hray3182/GeoNudge/internal/intake"
)

type eventResponse struct {
	EventID        string `json:"event_id,omitempty"`
	Status         string `json:"status"`
	SuppressReason string `json:"suppress_reason,omitempty"`
	Buffered       bool   `json:"buffered,omitempty"`
}

// handleEvent processes one crossing report. A transient pipeline failure
// buffers the report for replay and answers 202 so the client never
// retransmits on its own.
func (h *Handler) handleEvent(c *gin.Context) {
	var report intake.CrossingReport
	if err := c.ShouldBindJSON(&report); err != nil {
		h.logger.Warn().Err(err).Msg("failed to bind crossing report")
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ev, err := h.intake.Process(c.Request.Context(), report)
	if err != nil {
		if errors.Is(err, errs.ErrTransient) {
			if _, qerr := h.offline.Enqueue(c.Request.Context(), report); qerr != nil {
				h.logger.Error().Err(qerr).Msg("failed to buffer report")
				abort(c, http.StatusServiceUnavailable, "event processing unavailable")
				return
			}
			c.JSON(http.StatusAccepted, eventResponse{Status: "queued", Buffered: true})
			return
		}
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, eventResponse{
		EventID:        ev.ID.String(),
		Status:         string(ev.Status),
		SuppressReason: ev.SuppressReason,
	})
}

type eventSyncRequest struct {
	Reports []intake.CrossingReport `json:"reports" binding:"required"`
}

// handleEventSync replays a client-side backlog in order. Results are
// per-report: one bad report does not block the rest.
func (h *Handler) handleEventSync(c *gin.Context) {
	var req eventSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}

	results := make([]eventResponse, 0, len(req.Reports))
	for _, report := range req.Reports {
		ev, err := h.intake.Process(c.Request.Context(), report)
		switch {
		case err == nil:
			results = append(results, eventResponse{
				EventID:        ev.ID.String(),
				Status:         string(ev.Status),
				SuppressReason: ev.SuppressReason,
			})
		case errors.Is(err, errs.ErrTransient):
			if _, qerr := h.offline.Enqueue(c.Request.Context(), report); qerr != nil {
				results = append(results, eventResponse{Status: "failed"})
				continue
			}
			results = append(results, eventResponse{Status: "queued", Buffered: true})
		default:
			results = append(results, eventResponse{Status: "rejected"})
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
