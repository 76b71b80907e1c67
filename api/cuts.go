package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/haulboard/api/middleware"
	"github.com/kilianp07/haulboard/core/cut"
	"github.com/kilianp07/haulboard/core/model"
)

type cutRequest struct {
	CutType    model.CutType `json:"cutType" binding:"required"`
	LocationID string        `json:"locationId" binding:"required"`
	// StartDate defaults to today.
	StartDate string `json:"startDate"`
}

func (h *handler) cut(c *gin.Context) {
	var req cutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var start time.Time
	if req.StartDate != "" {
		d, err := model.ParseDay(req.StartDate)
		if err != nil {
			h.fail(c, err)
			return
		}
		start = d
	}
	e, err := h.Cuts.Cut(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), cut.Request{
		CutType:    req.CutType,
		LocationID: req.LocationID,
		StartDate:  start,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, e)
}

type restoreRequest struct {
	// AsNew recreates the transport instead of reactivating it.
	AsNew       bool   `json:"asNew"`
	OrderNumber string `json:"orderNumber"`
}

func (h *handler) restore(c *gin.Context) {
	var req restoreRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	caller := middleware.CallerFrom(c)
	if req.AsNew {
		t, err := h.Cuts.RestoreAsNew(c.Request.Context(), caller, c.Param("id"), req.OrderNumber)
		if err != nil {
			h.fail(c, err)
			return
		}
		ok(c, http.StatusCreated, t)
		return
	}
	e, err := h.Cuts.Restore(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, e)
}

func (h *handler) archive(c *gin.Context) {
	t, err := h.Cuts.Archive(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

func (h *handler) deleteTransport(c *gin.Context) {
	t, err := h.Cuts.Delete(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

type referenceRequest struct {
	OrderNumber string `json:"orderNumber" binding:"required"`
}

func (h *handler) referenceCheck(c *gin.Context) {
	var req referenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	dups, err := h.Cuts.Duplicates(c.Request.Context(), c.Param("id"), req.OrderNumber)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"reference":  model.NormalizeReference(req.OrderNumber),
		"duplicate":  len(dups) > 0,
		"transports": dups,
	})
}

func (h *handler) listCuts(c *gin.Context) {
	f := cut.Filter{
		ClientID:   c.Query("clientId"),
		CutType:    model.CutType(c.Query("cutType")),
		LocationID: c.Query("locationId"),
	}
	if s := c.Query("date"); s != "" {
		d, err := model.ParseDay(s)
		if err != nil {
			h.fail(c, err)
			return
		}
		f.Date = d
	}
	for name, dst := range map[string]*bool{"showRestored": &f.ShowRestored, "showArchived": &f.ShowArchived} {
		if s := c.Query(name); s != "" {
			v, err := strconv.ParseBool(s)
			if err != nil {
				h.fail(c, model.Invalid("%s must be a boolean", name))
				return
			}
			*dst = v
		}
	}
	list, err := h.Cuts.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

type locationRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
}

func (h *handler) createLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	l, err := h.Cuts.CreateLocation(c.Request.Context(), middleware.CallerFrom(c), req.Name, req.Address)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, l)
}

func (h *handler) deleteLocation(c *gin.Context) {
	if err := h.Cuts.DeleteLocation(c.Request.Context(), middleware.CallerFrom(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
