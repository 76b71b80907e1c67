// Package conflict reports whether a driver or truck is already committed
// on a set of dates.
//
// Only transports that were sent to their driver lock a resource. Staged
// placements may overlap freely. The check is advisory: nothing is locked
// between a check and the assignment that follows it.
package conflict

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/haulboard/core/model"
	"github.com/kilianp07/haulboard/core/store"
)

// Request asks whether DriverID and TruckID are free on Dates. Rows of
// ExcludeTransportID, the transport being placed, never conflict.
type Request struct {
	Dates              []time.Time `json:"dates"`
	DriverID           string      `json:"driverId,omitempty"`
	TruckID            string      `json:"truckId,omitempty"`
	ExcludeTransportID string      `json:"excludeTransportId,omitempty"`
}

// Assignment is one committed transport colliding with the request.
type Assignment struct {
	SlotNumber  int    `json:"slotNumber"`
	SlotID      string `json:"slotId"`
	DriverName  string `json:"driverName,omitempty"`
	TruckName   string `json:"truckName,omitempty"`
	TransportID string `json:"transportId"`
}

// DateConflict groups the collisions of one date.
type DateConflict struct {
	Date        time.Time    `json:"date"`
	Assignments []Assignment `json:"assignments"`
}

// Result is the outcome of Check.
type Result struct {
	Available bool           `json:"available"`
	Conflicts []DateConflict `json:"conflicts"`
}

// Err converts an unavailable result into an ErrConflict naming the
// colliding transports.
func (r Result) Err() error {
	if r.Available {
		return nil
	}
	first := r.Conflicts[0]
	related := []string{}
	for _, c := range r.Conflicts {
		for _, a := range c.Assignments {
			related = append(related, a.TransportID)
		}
	}
	return &model.Error{
		Kind:    model.ErrConflict,
		Entity:  "slot",
		ID:      first.Assignments[0].SlotID,
		Date:    first.Date,
		Message: fmt.Sprintf("resource already committed to %d transport(s)", len(related)),
		Related: related,
	}
}

// Names resolves resource display names.
type Names interface {
	DisplayName(ctx context.Context, kind model.ResourceKind, id string) string
}

// Checker runs conflict checks against a store.
type Checker struct {
	store store.Store
	names Names
}

func New(s store.Store, names Names) *Checker {
	return &Checker{store: s, names: names}
}

// Check evaluates req against the checker's store.
func (c *Checker) Check(ctx context.Context, req Request) (Result, error) {
	return c.CheckIn(ctx, c.store, req)
}

// CheckIn evaluates req against s, typically a transaction view.
func (c *Checker) CheckIn(ctx context.Context, s store.Store, req Request) (Result, error) {
	if len(req.Dates) == 0 {
		return Result{}, model.Invalid("at least one date is required")
	}
	res := Result{Available: true, Conflicts: []DateConflict{}}
	if req.DriverID == "" && req.TruckID == "" {
		return res, nil
	}
	for _, day := range uniqueDays(req.Dates) {
		hits, err := c.checkDay(ctx, s, day, req)
		if err != nil {
			return Result{}, err
		}
		if len(hits) > 0 {
			res.Available = false
			res.Conflicts = append(res.Conflicts, DateConflict{Date: day, Assignments: hits})
		}
	}
	return res, nil
}

func (c *Checker) checkDay(ctx context.Context, s store.Store, day time.Time, req Request) ([]Assignment, error) {
	rows, err := s.ListAssignments(ctx, store.AssignmentFilter{Date: day})
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	slots := map[string]*model.PlanningSlot{}
	hits := []Assignment{}
	for _, a := range rows {
		if a.SlotID == nil || a.TransportID == req.ExcludeTransportID {
			continue
		}
		slot, ok := slots[*a.SlotID]
		if !ok {
			sl, err := s.GetSlot(ctx, *a.SlotID)
			if err != nil {
				return nil, fmt.Errorf("slot of assignment %s: %w", a.ID, err)
			}
			if collides(sl, req) {
				slot = &sl
			}
			slots[*a.SlotID] = slot
		}
		if slot == nil {
			continue
		}
		t, err := s.GetTransport(ctx, a.TransportID)
		if err != nil {
			return nil, fmt.Errorf("transport of assignment %s: %w", a.ID, err)
		}
		if !t.SentToDriver || !t.Active() {
			continue
		}
		hits = append(hits, Assignment{
			SlotNumber:  slot.Number,
			SlotID:      slot.ID,
			DriverName:  c.name(ctx, model.KindDriver, slot.DriverID),
			TruckName:   c.name(ctx, model.KindTruck, slot.TruckID),
			TransportID: t.ID,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].SlotNumber != hits[j].SlotNumber {
			return hits[i].SlotNumber < hits[j].SlotNumber
		}
		return hits[i].TransportID < hits[j].TransportID
	})
	return hits, nil
}

func collides(s model.PlanningSlot, req Request) bool {
	if req.DriverID != "" && model.StrVal(s.DriverID) == req.DriverID {
		return true
	}
	return req.TruckID != "" && model.StrVal(s.TruckID) == req.TruckID
}

func (c *Checker) name(ctx context.Context, kind model.ResourceKind, id *string) string {
	if id == nil {
		return ""
	}
	if c.names == nil {
		return *id
	}
	return c.names.DisplayName(ctx, kind, *id)
}

func uniqueDays(dates []time.Time) []time.Time {
	seen := map[time.Time]struct{}{}
	out := []time.Time{}
	for _, d := range dates {
		d = model.Day(d)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
