package api

import (
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// stream relays board events as server-sent events. The topics query
// parameter is a comma separated list of event kinds (slot, transport, ...);
// board-wide broadcasts are always delivered.
func (h *handler) stream(c *gin.Context) {
	var kinds []string
	for _, k := range strings.Split(c.Query("topics"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, k)
		}
	}
	sub := h.Stream.Subscribe(kinds...)
	defer h.Stream.Unsubscribe(sub)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"topics": kinds})
	c.Writer.Flush()

	ping := time.NewTicker(h.keepAlive)
	defer ping.Stop()
	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-sub:
			if !ok {
				return false
			}
			c.SSEvent(e.Name, e)
			return true
		case t := <-ping.C:
			c.SSEvent("ping", t.UTC().Format(time.RFC3339))
			return true
		}
	})
}
