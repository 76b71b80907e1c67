// Package store defines the repository the planning core persists through.
//
// Two implementations exist: MemoryStore in this package, used by tests and
// the "memory" database driver, and the PostgreSQL-backed store in
// infra/gormstore.
package store

import (
	"context"
	"time"

	"github.com/kilianp07/haulboard/core/model"
)

// TransportFilter selects transports. Zero fields do not filter.
type TransportFilter struct {
	IDs       []string
	Reference string
	// OriginalIDs matches transports whose OriginalTransportID is in the set.
	OriginalIDs    []string
	ClientID       string
	IncludeDeleted bool
}

// SlotFilter selects planning slots. Zero fields do not filter.
type SlotFilter struct {
	Day      time.Time
	IDs      []string
	DriverID string
	TruckID  string
}

// AssignmentFilter selects TransportSlot rows. Zero fields do not filter.
type AssignmentFilter struct {
	TransportID string
	SlotID      string
	Date        time.Time
	// Unassigned restricts the result to rows without a slot.
	Unassigned bool
}

// CutInfoFilter selects cut-info rows. Zero fields do not filter.
type CutInfoFilter struct {
	LocationID   string
	TransportIDs []string
}

// Store is the CRUD repository behind the planning board.
//
// Get methods return an error wrapping model.ErrNotFound when the row does
// not exist. Save methods insert or update by primary key.
type Store interface {
	// WithTx runs fn against a transactional view of the store. Writes made
	// through the view are discarded when fn returns an error.
	WithTx(ctx context.Context, fn func(Store) error) error

	GetTransport(ctx context.Context, id string) (model.Transport, error)
	SaveTransport(ctx context.Context, t *model.Transport) error
	ListTransports(ctx context.Context, f TransportFilter) ([]model.Transport, error)

	GetSlot(ctx context.Context, id string) (model.PlanningSlot, error)
	SaveSlot(ctx context.Context, s *model.PlanningSlot) error
	DeleteSlot(ctx context.Context, id string) error
	ListSlots(ctx context.Context, f SlotFilter) ([]model.PlanningSlot, error)

	// FindAssignment returns the single row of (transportID, day).
	FindAssignment(ctx context.Context, transportID string, day time.Time) (model.TransportSlot, error)
	SaveAssignment(ctx context.Context, a *model.TransportSlot) error
	ListAssignments(ctx context.Context, f AssignmentFilter) ([]model.TransportSlot, error)

	GetCutInfo(ctx context.Context, transportID string) (model.CutInfo, error)
	SaveCutInfo(ctx context.Context, c *model.CutInfo) error
	ListCutInfos(ctx context.Context, f CutInfoFilter) ([]model.CutInfo, error)

	GetLocation(ctx context.Context, id string) (model.CutLocation, error)
	SaveLocation(ctx context.Context, l *model.CutLocation) error
	DeleteLocation(ctx context.Context, id string) error

	GetResource(ctx context.Context, kind model.ResourceKind, id string) (model.Resource, error)
	SaveResource(ctx context.Context, r *model.Resource) error
	ListResources(ctx context.Context, kind model.ResourceKind, activeOnly bool) ([]model.Resource, error)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
