package planning

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/haulboard/core/model"
	"github.com/kilianp07/haulboard/core/notify"
	"github.com/kilianp07/haulboard/core/store"
)

// CreateSlot appends a slot to day with the next free number.
func (b *Board) CreateSlot(ctx context.Context, c model.Caller, day time.Time) (model.PlanningSlot, error) {
	day = model.Day(day)
	var slot model.PlanningSlot
	err := b.mutate(ctx, c, "create_slot", func(tx store.Store) error {
		existing, err := tx.ListSlots(ctx, store.SlotFilter{Day: day})
		if err != nil {
			return err
		}
		number, order := 0, 0
		for _, s := range existing {
			number = max(number, s.Number)
			order = max(order, s.Order)
		}
		slot = model.PlanningSlot{Day: day, Number: number + 1, Order: order + 1}
		return tx.SaveSlot(ctx, &slot)
	})
	if err != nil {
		return model.PlanningSlot{}, err
	}
	b.notifier.Notify(ctx, notify.SlotCreated, slot)
	return slot, nil
}

// DeleteSlot removes a slot after clearing the slot reference of every
// assignment bound to it. The transports keep their reservation of the date.
func (b *Board) DeleteSlot(ctx context.Context, c model.Caller, slotID string, day time.Time) error {
	day = model.Day(day)
	var cleared []string
	err := b.mutate(ctx, c, "delete_slot", func(tx store.Store) error {
		slot, err := tx.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		day = slot.Day
		rows, err := tx.ListAssignments(ctx, store.AssignmentFilter{SlotID: slotID})
		if err != nil {
			return err
		}
		for _, a := range rows {
			a.SlotID = nil
			if err := tx.SaveAssignment(ctx, &a); err != nil {
				return fmt.Errorf("unassign %s: %w", a.TransportID, err)
			}
			cleared = append(cleared, a.TransportID)
		}
		return tx.DeleteSlot(ctx, slotID)
	})
	if err != nil {
		return err
	}
	if cleared == nil {
		cleared = []string{}
	}
	b.notifier.Notify(ctx, notify.SlotDeleted, notify.SlotRemoved{SlotID: slotID, Date: day, Unassigned: cleared})
	return nil
}

// AssignDriver binds driverID to the slot, or clears it when nil. No
// uniqueness is enforced here.
func (b *Board) AssignDriver(ctx context.Context, c model.Caller, slotID string, driverID *string) (model.PlanningSlot, error) {
	return b.assignResource(ctx, c, model.KindDriver, slotID, driverID)
}

// AssignTruck binds truckID to the slot, or clears it when nil.
func (b *Board) AssignTruck(ctx context.Context, c model.Caller, slotID string, truckID *string) (model.PlanningSlot, error) {
	return b.assignResource(ctx, c, model.KindTruck, slotID, truckID)
}

func (b *Board) assignResource(ctx context.Context, c model.Caller, kind model.ResourceKind, slotID string, id *string) (model.PlanningSlot, error) {
	if err := c.RequirePlanner(); err != nil {
		return model.PlanningSlot{}, err
	}
	if id != nil && *id == "" {
		id = nil
	}
	name := ""
	if id != nil {
		e, err := b.registry.Get(ctx, kind, *id)
		if err != nil {
			return model.PlanningSlot{}, err
		}
		name = e.Name
	}
	var slot model.PlanningSlot
	err := b.mutate(ctx, c, "assign_"+string(kind), func(tx store.Store) error {
		var err error
		if slot, err = tx.GetSlot(ctx, slotID); err != nil {
			return err
		}
		if kind == model.KindDriver {
			slot.DriverID = id
		} else {
			slot.TruckID = id
		}
		return tx.SaveSlot(ctx, &slot)
	})
	if err != nil {
		return model.PlanningSlot{}, err
	}
	event := notify.DriverAssigned
	if kind == model.KindTruck {
		event = notify.TruckAssigned
	}
	b.notifier.Notify(ctx, event, notify.ResourceAssigned{Slot: slot, ResourceID: model.StrVal(id), Name: name})
	return slot, nil
}

// SetDriverStartNote stores free text shown to the driver of the slot.
func (b *Board) SetDriverStartNote(ctx context.Context, c model.Caller, slotID, text string) (model.PlanningSlot, error) {
	var slot model.PlanningSlot
	err := b.mutate(ctx, c, "driver_note", func(tx store.Store) error {
		var err error
		if slot, err = tx.GetSlot(ctx, slotID); err != nil {
			return err
		}
		slot.DriverStartNote = text
		return tx.SaveSlot(ctx, &slot)
	})
	if err != nil {
		return model.PlanningSlot{}, err
	}
	b.notifier.Notify(ctx, notify.SlotUpdated, slot)
	return slot, nil
}

// ReorderSlots sets the display order of the slots of day. slotIDs come
// first in the given order; slots not listed keep their relative order
// after them.
func (b *Board) ReorderSlots(ctx context.Context, c model.Caller, day time.Time, slotIDs []string) ([]model.PlanningSlot, error) {
	day = model.Day(day)
	var out []model.PlanningSlot
	err := b.mutate(ctx, c, "reorder_slots", func(tx store.Store) error {
		slots, err := tx.ListSlots(ctx, store.SlotFilter{Day: day})
		if err != nil {
			return err
		}
		pos := make(map[string]int, len(slotIDs))
		for i, id := range slotIDs {
			if _, dup := pos[id]; dup {
				return model.Invalid("slot %s listed twice", id)
			}
			pos[id] = i
		}
		byID := make(map[string]bool, len(slots))
		for _, s := range slots {
			byID[s.ID] = true
		}
		for _, id := range slotIDs {
			if !byID[id] {
				return &model.Error{Kind: model.ErrNotFound, Entity: "slot", ID: id, Date: day}
			}
		}
		sort.SliceStable(slots, func(i, j int) bool {
			pi, iok := pos[slots[i].ID]
			pj, jok := pos[slots[j].ID]
			switch {
			case iok && jok:
				return pi < pj
			case iok != jok:
				return iok
			default:
				return false
			}
		})
		for i := range slots {
			if slots[i].Order == i+1 {
				continue
			}
			slots[i].Order = i + 1
			if err := tx.SaveSlot(ctx, &slots[i]); err != nil {
				return err
			}
		}
		out = slots
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.notifier.Notify(ctx, notify.SlotsReordered, notify.SlotsOrder{Date: day, Slots: out})
	return out, nil
}

// ListDay derives the board of day: slots by display order, each with its
// transports by slotOrder. Cut, archived and deleted transports are left
// out. Reading requires no role.
func (b *Board) ListDay(ctx context.Context, day time.Time) (model.DayPlan, error) {
	day = model.Day(day)
	plan := model.DayPlan{Date: day, Slots: []model.SlotPlan{}, Unassigned: []model.AssignedTransport{}}
	err := b.store.WithTx(ctx, func(tx store.Store) error {
		slots, err := tx.ListSlots(ctx, store.SlotFilter{Day: day})
		if err != nil {
			return err
		}
		rows, err := tx.ListAssignments(ctx, store.AssignmentFilter{Date: day})
		if err != nil {
			return err
		}
		index := make(map[string]int, len(slots))
		for _, s := range slots {
			index[s.ID] = len(plan.Slots)
			plan.Slots = append(plan.Slots, model.SlotPlan{Date: day, Slot: s, Transports: []model.AssignedTransport{}})
		}
		for _, a := range rows {
			t, err := tx.GetTransport(ctx, a.TransportID)
			if err != nil {
				return fmt.Errorf("transport of assignment %s: %w", a.ID, err)
			}
			if !t.Active() {
				continue
			}
			at := model.AssignedTransport{Assignment: a, Transport: t}
			i, ok := -1, false
			if a.SlotID != nil {
				i, ok = index[*a.SlotID]
			}
			if !ok {
				plan.Unassigned = append(plan.Unassigned, at)
				continue
			}
			plan.Slots[i].Transports = append(plan.Slots[i].Transports, at)
		}
		return nil
	})
	if err != nil {
		return model.DayPlan{}, err
	}
	for _, sp := range plan.Slots {
		sortAssigned(sp.Transports)
	}
	sortAssigned(plan.Unassigned)
	return plan, nil
}

func sortAssigned(list []model.AssignedTransport) {
	sort.SliceStable(list, func(i, j int) bool {
		return model.AssignmentLess(list[i].Assignment, list[j].Assignment)
	})
}
