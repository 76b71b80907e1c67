package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/haulboard/core/model"
)

// statusOf maps a core error kind onto an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrInUse):
		return http.StatusConflict
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	body := gin.H{"status": "error", "message": err.Error()}
	if status == http.StatusInternalServerError {
		h.log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		body["message"] = "internal error"
	}
	var me *model.Error
	if errors.As(err, &me) {
		if len(me.Related) > 0 {
			body["related"] = me.Related
		}
		if !me.Date.IsZero() {
			body["date"] = me.Date.Format(model.DayLayout)
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"status": "success", "data": data})
}
