// Package planning owns the day-partitioned slot board and the assignment
// engine binding transports to slots.
//
// Every mutation takes the caller explicitly, runs in one store transaction
// and, once committed, emits a notification. Notification failures never
// reach the caller.
package planning

import (
	"context"

	"github.com/kilianp07/haulboard/core/conflict"
	"github.com/kilianp07/haulboard/core/logger"
	"github.com/kilianp07/haulboard/core/model"
	"github.com/kilianp07/haulboard/core/notify"
	"github.com/kilianp07/haulboard/core/registry"
	"github.com/kilianp07/haulboard/core/store"
)

// Option configures a Board.
type Option func(*Board)

// WithGuardedAssignments makes AssignChecked hold per-(driver, date) and
// per-(truck, date) locks across the conflict check and the commit.
func WithGuardedAssignments(on bool) Option {
	return func(b *Board) { b.guarded = on }
}

// Board is the planning board service.
type Board struct {
	store    store.Store
	registry *registry.Registry
	checker  *conflict.Checker
	notifier notify.Notifier
	log      logger.Logger
	locks    *KeyedLocker
	guarded  bool
}

// NewBoard wires a board. A nil registry, checker, notifier or logger is
// replaced by a default built on s.
func NewBoard(s store.Store, reg *registry.Registry, checker *conflict.Checker, n notify.Notifier, log logger.Logger, opts ...Option) *Board {
	if reg == nil {
		reg = registry.New(s)
	}
	if checker == nil {
		checker = conflict.New(s, reg)
	}
	if n == nil {
		n = notify.NopNotifier{}
	}
	if log == nil {
		log = logger.Nop{}
	}
	b := &Board{
		store:    s,
		registry: reg,
		checker:  checker,
		notifier: n,
		log:      log,
		locks:    NewKeyedLocker(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Guarded reports whether checked assignments are serialised per resource.
func (b *Board) Guarded() bool { return b.guarded }

// mutate authorises c and runs fn in a transaction.
func (b *Board) mutate(ctx context.Context, c model.Caller, op string, fn func(tx store.Store) error) error {
	if err := c.RequirePlanner(); err != nil {
		return err
	}
	if err := b.store.WithTx(ctx, fn); err != nil {
		b.log.Debugw("planning mutation rejected", map[string]any{"op": op, "user": c.UserID, "error": err.Error()})
		return err
	}
	mutationsTotal.WithLabelValues(op).Inc()
	b.log.Debugw("planning mutation committed", map[string]any{"op": op, "user": c.UserID})
	return nil
}

// liveTransport loads a transport that has not been deleted.
func liveTransport(ctx context.Context, tx store.Store, id string) (model.Transport, error) {
	t, err := tx.GetTransport(ctx, id)
	if err != nil {
		return model.Transport{}, err
	}
	if t.IsDeleted {
		return model.Transport{}, model.NotFound("transport", id)
	}
	return t, nil
}
