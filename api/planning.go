package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/haulboard/api/middleware"
	"github.com/kilianp07/haulboard/core/conflict"
	"github.com/kilianp07/haulboard/core/model"
)

func (h *handler) listResources(c *gin.Context) {
	kind, err := model.ParseResourceKind(c.Param("kind"))
	if err != nil {
		h.fail(c, err)
		return
	}
	list, err := h.Registry.ListActive(c.Request.Context(), kind)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (h *handler) listDay(c *gin.Context) {
	day, err := model.ParseDay(c.Param("date"))
	if err != nil {
		h.fail(c, err)
		return
	}
	plan, err := h.Board.ListDay(c.Request.Context(), day)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, plan)
}

func (h *handler) createSlot(c *gin.Context) {
	day, err := model.ParseDay(c.Param("date"))
	if err != nil {
		h.fail(c, err)
		return
	}
	slot, err := h.Board.CreateSlot(c.Request.Context(), middleware.CallerFrom(c), day)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, slot)
}

type deleteSlotRequest struct {
	Date string `json:"date" binding:"required"`
}

func (h *handler) deleteSlot(c *gin.Context) {
	var req deleteSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	day, err := model.ParseDay(req.Date)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Board.DeleteSlot(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), day); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type resourceRequest struct {
	DriverID *string `json:"driverId"`
	TruckID  *string `json:"truckId"`
}

func (h *handler) assignDriver(c *gin.Context) {
	var req resourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	slot, err := h.Board.AssignDriver(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), req.DriverID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, slot)
}

func (h *handler) assignTruck(c *gin.Context) {
	var req resourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	slot, err := h.Board.AssignTruck(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), req.TruckID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, slot)
}

type noteRequest struct {
	Text string `json:"text"`
}

func (h *handler) setNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	slot, err := h.Board.SetDriverStartNote(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, slot)
}

type slotOrderRequest struct {
	SlotIDs []string `json:"slotIds" binding:"required"`
}

func (h *handler) reorderSlots(c *gin.Context) {
	day, err := model.ParseDay(c.Param("date"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var req slotOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	slots, err := h.Board.ReorderSlots(c.Request.Context(), middleware.CallerFrom(c), day, req.SlotIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, slots)
}

type assignRequest struct {
	TransportID string `json:"transportId" binding:"required"`
	SlotID      string `json:"slotId"`
	Date        string `json:"date" binding:"required"`
	// Checked runs the conflict check before committing.
	Checked bool `json:"checked"`
}

func (h *handler) assign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	day, err := model.ParseDay(req.Date)
	if err != nil {
		h.fail(c, err)
		return
	}
	assign := h.Board.Assign
	if req.Checked {
		assign = h.Board.AssignChecked
	}
	row, err := assign(c.Request.Context(), middleware.CallerFrom(c), req.TransportID, req.SlotID, day)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, row)
}

type unassignRequest struct {
	TransportID string `json:"transportId" binding:"required"`
	Date        string `json:"date" binding:"required"`
}

func (h *handler) unassign(c *gin.Context) {
	var req unassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	day, err := model.ParseDay(req.Date)
	if err != nil {
		h.fail(c, err)
		return
	}
	row, err := h.Board.Unassign(c.Request.Context(), middleware.CallerFrom(c), req.TransportID, day)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, row)
}

type reorderRequest struct {
	SlotID      string `json:"slotId" binding:"required"`
	TransportID string `json:"transportId" binding:"required"`
	NewOrder    int    `json:"newOrder"`
	Date        string `json:"date" binding:"required"`
}

func (h *handler) reorder(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	day, err := model.ParseDay(req.Date)
	if err != nil {
		h.fail(c, err)
		return
	}
	row, err := h.Board.Reorder(c.Request.Context(), middleware.CallerFrom(c), req.TransportID, req.SlotID, day, req.NewOrder)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, row)
}

type conflictRequest struct {
	Dates              []string `json:"dates" binding:"required"`
	DriverID           string   `json:"driverId"`
	TruckID            string   `json:"truckId"`
	ExcludeTransportID string   `json:"excludeTransportId"`
}

func (h *handler) checkConflicts(c *gin.Context) {
	var req conflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	days := make([]time.Time, 0, len(req.Dates))
	for _, s := range req.Dates {
		d, err := model.ParseDay(s)
		if err != nil {
			h.fail(c, err)
			return
		}
		days = append(days, d)
	}
	res, err := h.Checker.Check(c.Request.Context(), conflict.Request{
		Dates:              days,
		DriverID:           req.DriverID,
		TruckID:            req.TruckID,
		ExcludeTransportID: req.ExcludeTransportID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h *handler) cancel(c *gin.Context) {
	t, err := h.Board.Cancel(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

type sentRequest struct {
	Sent *bool `json:"sent" binding:"required"`
}

func (h *handler) markSent(c *gin.Context) {
	var req sentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.Board.MarkSent(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), *req.Sent)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

type etaRequest struct {
	// ETA is RFC 3339; null clears it.
	ETA *time.Time `json:"eta"`
}

func (h *handler) updateETA(c *gin.Context) {
	var req etaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.Board.UpdateETA(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), req.ETA)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}
