// Package api exposes the planning board over HTTP with gin.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kilianp07/haulboard/api/middleware"
	"github.com/kilianp07/haulboard/core/conflict"
	"github.com/kilianp07/haulboard/core/cut"
	"github.com/kilianp07/haulboard/core/logger"
	"github.com/kilianp07/haulboard/core/notify"
	"github.com/kilianp07/haulboard/core/planning"
	"github.com/kilianp07/haulboard/core/registry"
)

// Stream is the subscription side of the notification fan-out.
type Stream interface {
	Subscribe(kinds ...string) <-chan notify.Event
	Unsubscribe(ch <-chan notify.Event)
}

// Deps are the services the handlers call into.
type Deps struct {
	Board    *planning.Board
	Cuts     *cut.Manager
	Checker  *conflict.Checker
	Registry *registry.Registry
	Stream   Stream
	Log      logger.Logger
}

// Options configures the router.
type Options struct {
	JWTSecret   []byte
	CORSOrigins []string
	// KeepAlive is the interval of SSE ping events. Zero uses 25s.
	KeepAlive time.Duration
}

type handler struct {
	Deps
	keepAlive time.Duration
}

// NewRouter builds the gin engine serving /health and /api.
func NewRouter(d Deps, o Options) *gin.Engine {
	if d.Log == nil {
		d.Log = logger.Nop{}
	}
	h := &handler{Deps: d, keepAlive: o.KeepAlive}
	if h.keepAlive <= 0 {
		h.keepAlive = 25 * time.Second
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(d.Log))
	if len(o.CORSOrigins) > 0 {
		cc := cors.DefaultConfig()
		cc.AllowOrigins = o.CORSOrigins
		cc.AllowHeaders = append(cc.AllowHeaders, "Authorization")
		r.Use(cors.New(cc))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", middleware.Auth(o.JWTSecret))
	{
		api.GET("/resources/:kind", h.listResources)
		api.GET("/board/stream", h.stream)

		pl := api.Group("/planning")
		{
			pl.GET("/days/:date", h.listDay)
			pl.POST("/days/:date/slots", h.createSlot)
			pl.PUT("/days/:date/slots/order", h.reorderSlots)
			pl.DELETE("/slots/:id", h.deleteSlot)
			pl.PUT("/slots/:id/driver", h.assignDriver)
			pl.PUT("/slots/:id/truck", h.assignTruck)
			pl.PUT("/slots/:id/note", h.setNote)
			pl.PUT("/assignments", h.assign)
			pl.DELETE("/assignments", h.unassign)
			pl.PUT("/reorder", h.reorder)
			pl.POST("/conflicts", h.checkConflicts)
		}

		tr := api.Group("/transports/:id")
		{
			tr.POST("/cancel", h.cancel)
			tr.PUT("/sent", h.markSent)
			tr.PUT("/eta", h.updateETA)
			tr.POST("/cut", h.cut)
			tr.POST("/restore", h.restore)
			tr.POST("/archive", h.archive)
			tr.POST("/reference-check", h.referenceCheck)
		}
		api.DELETE("/transports/:id", h.deleteTransport)

		api.GET("/cuts", h.listCuts)
		api.POST("/cut-locations", h.createLocation)
		api.DELETE("/cut-locations/:id", h.deleteLocation)
	}
	return r
}

// Server runs the router until its context is canceled.
type Server struct {
	srv      *http.Server
	shutdown time.Duration
	log      logger.Logger
}

// NewServer wraps handler in an http.Server listening on addr.
func NewServer(addr string, handler http.Handler, shutdown time.Duration, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop{}
	}
	return &Server{
		srv:      &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		shutdown: shutdown,
		log:      log,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	// Long-lived streams end with ctx instead of holding up Shutdown.
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("api listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return err
	}
	return <-errCh
}
