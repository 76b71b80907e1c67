package planning

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/haulboard/core/conflict"
	"github.com/kilianp07/haulboard/core/model"
	"github.com/kilianp07/haulboard/core/notify"
	"github.com/kilianp07/haulboard/core/store"
)

// Assign binds the transport to the slot on date. The (transport, date) row
// is upserted. A row entering a slot lands after the last row already in it;
// a row already in the slot keeps its order. The engine does not consult the
// conflict checker.
func (b *Board) Assign(ctx context.Context, c model.Caller, transportID, slotID string, date time.Time) (model.TransportSlot, error) {
	return b.assign(ctx, c, transportID, slotID, date, false)
}

// AssignChecked runs the conflict check for the slot's driver and truck
// before assigning and fails with ErrConflict when either is committed
// elsewhere on date. With guarded assignments the check and the commit run
// under per-resource locks; otherwise the check is advisory.
func (b *Board) AssignChecked(ctx context.Context, c model.Caller, transportID, slotID string, date time.Time) (model.TransportSlot, error) {
	return b.assign(ctx, c, transportID, slotID, date, true)
}

func (b *Board) assign(ctx context.Context, c model.Caller, transportID, slotID string, date time.Time, checked bool) (model.TransportSlot, error) {
	if err := c.RequirePlanner(); err != nil {
		return model.TransportSlot{}, err
	}
	day := model.Day(date)
	keys := []string{assignmentKey(transportID, day)}
	if checked {
		slot, err := b.store.GetSlot(ctx, slotID)
		if err != nil {
			return model.TransportSlot{}, err
		}
		if err := slotOnDay(slot, day); err != nil {
			return model.TransportSlot{}, err
		}
		if b.guarded {
			keys = append(keys,
				resourceKey(model.KindDriver, slot.DriverID, day),
				resourceKey(model.KindTruck, slot.TruckID, day))
		} else {
			res, err := b.checker.Check(ctx, checkRequest(slot, transportID, day))
			if err != nil {
				return model.TransportSlot{}, err
			}
			if err := res.Err(); err != nil {
				return model.TransportSlot{}, err
			}
		}
	}

	unlock := b.locks.Lock(keys...)
	defer unlock()

	var out model.AssignedTransport
	err := b.mutate(ctx, c, "assign", func(tx store.Store) error {
		t, err := liveTransport(ctx, tx, transportID)
		if err != nil {
			return err
		}
		if t.IsCut {
			return &model.Error{Kind: model.ErrInvalid, Entity: "transport", ID: transportID, Message: "transport is cut"}
		}
		slot, err := tx.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if err := slotOnDay(slot, day); err != nil {
			return err
		}
		if checked && b.guarded {
			res, err := b.checker.CheckIn(ctx, tx, checkRequest(slot, transportID, day))
			if err != nil {
				return err
			}
			if err := res.Err(); err != nil {
				return err
			}
		}
		row, err := tx.FindAssignment(ctx, transportID, day)
		switch {
		case errors.Is(err, model.ErrNotFound):
			row = model.TransportSlot{TransportID: transportID, Date: day}
		case err != nil:
			return err
		}
		if !row.InSlot(slotID) {
			last, err := maxSlotOrder(ctx, tx, slotID, day)
			if err != nil {
				return err
			}
			row.SlotID = &slot.ID
			row.SlotOrder = last + 1
		}
		if err := tx.SaveAssignment(ctx, &row); err != nil {
			return err
		}
		out = model.AssignedTransport{Assignment: row, Transport: t}
		return nil
	})
	if err != nil {
		return model.TransportSlot{}, err
	}
	b.notifier.Notify(ctx, notify.AssignmentUpdated, out)
	return out.Assignment, nil
}

// slotOnDay rejects binding a row of day to a slot of another day.
func slotOnDay(slot model.PlanningSlot, day time.Time) error {
	if slot.Day.Equal(day) {
		return nil
	}
	return &model.Error{Kind: model.ErrInvalid, Entity: "slot", ID: slot.ID, Date: day,
		Message: "slot belongs to " + slot.Day.Format(model.DayLayout)}
}

func checkRequest(slot model.PlanningSlot, transportID string, day time.Time) conflict.Request {
	return conflict.Request{
		Dates:              []time.Time{day},
		DriverID:           model.StrVal(slot.DriverID),
		TruckID:            model.StrVal(slot.TruckID),
		ExcludeTransportID: transportID,
	}
}

// maxSlotOrder returns the highest slotOrder in the slot on day, 0 when the
// slot is empty.
func maxSlotOrder(ctx context.Context, tx store.Store, slotID string, day time.Time) (int, error) {
	rows, err := tx.ListAssignments(ctx, store.AssignmentFilter{SlotID: slotID, Date: day})
	if err != nil {
		return 0, err
	}
	last := 0
	for _, a := range rows {
		last = max(last, a.SlotOrder)
	}
	return last, nil
}

// Unassign clears the slot of the (transport, date) row. The row stays so
// the transport keeps its reservation of the date.
func (b *Board) Unassign(ctx context.Context, c model.Caller, transportID string, date time.Time) (model.TransportSlot, error) {
	day := model.Day(date)
	unlock := b.locks.Lock(assignmentKey(transportID, day))
	defer unlock()

	var out model.AssignedTransport
	err := b.mutate(ctx, c, "unassign", func(tx store.Store) error {
		t, err := liveTransport(ctx, tx, transportID)
		if err != nil {
			return err
		}
		row, err := tx.FindAssignment(ctx, transportID, day)
		if err != nil {
			return err
		}
		row.SlotID = nil
		if err := tx.SaveAssignment(ctx, &row); err != nil {
			return err
		}
		out = model.AssignedTransport{Assignment: row, Transport: t}
		return nil
	})
	if err != nil {
		return model.TransportSlot{}, err
	}
	b.notifier.Notify(ctx, notify.AssignmentUpdated, out)
	return out.Assignment, nil
}

// Reorder sets the slotOrder of the transport's row in slotID on date.
// Sibling rows are not renumbered. Setting the current value again changes
// nothing.
func (b *Board) Reorder(ctx context.Context, c model.Caller, transportID, slotID string, date time.Time, newOrder int) (model.TransportSlot, error) {
	day := model.Day(date)
	unlock := b.locks.Lock(assignmentKey(transportID, day))
	defer unlock()

	var (
		out     model.AssignedTransport
		changed bool
	)
	err := b.mutate(ctx, c, "reorder", func(tx store.Store) error {
		row, err := tx.FindAssignment(ctx, transportID, day)
		if err != nil {
			return err
		}
		if !row.InSlot(slotID) {
			return &model.Error{Kind: model.ErrNotFound, Entity: "assignment", ID: transportID, Date: day,
				Message: "transport is not in slot " + slotID}
		}
		t, err := tx.GetTransport(ctx, transportID)
		if err != nil {
			return err
		}
		out = model.AssignedTransport{Assignment: row, Transport: t}
		if row.SlotOrder == newOrder {
			return nil
		}
		row.SlotOrder = newOrder
		if err := tx.SaveAssignment(ctx, &row); err != nil {
			return err
		}
		out.Assignment = row
		changed = true
		return nil
	})
	if err != nil {
		return model.TransportSlot{}, err
	}
	if changed {
		b.notifier.Notify(ctx, notify.AssignmentUpdated, out)
	}
	return out.Assignment, nil
}

// Cancel marks the transport cancelled and returns it to a dispatch-safe
// state: not sent, no truck or trailer, no slot on any date. Its assignment
// rows are kept so it can be planned again.
func (b *Board) Cancel(ctx context.Context, c model.Caller, transportID string) (model.Transport, error) {
	var out notify.Cancellation
	err := b.mutate(ctx, c, "cancel", func(tx store.Store) error {
		t, err := liveTransport(ctx, tx, transportID)
		if err != nil {
			return err
		}
		t.Status = model.StatusCancelled
		t.SentToDriver = false
		t.TruckID = nil
		t.TrailerID = nil
		if err := tx.SaveTransport(ctx, &t); err != nil {
			return err
		}
		rows, err := tx.ListAssignments(ctx, store.AssignmentFilter{TransportID: transportID})
		if err != nil {
			return err
		}
		for i := range rows {
			if rows[i].SlotID == nil {
				continue
			}
			rows[i].SlotID = nil
			if err := tx.SaveAssignment(ctx, &rows[i]); err != nil {
				return err
			}
		}
		out = notify.Cancellation{Transport: t, Assignments: rows}
		return nil
	})
	if err != nil {
		return model.Transport{}, err
	}
	b.notifier.Notify(ctx, notify.TransportCancelled, out)
	return out.Transport, nil
}

// MarkSent sets the committed flag of the transport. A committed transport
// locks its slot's driver and truck for the conflict checker, so sending
// fails with ErrConflict when one of them is already committed to another
// transport on a date the transport is planned for. The check runs under
// the per-resource locks of every planned date.
func (b *Board) MarkSent(ctx context.Context, c model.Caller, transportID string, sent bool) (model.Transport, error) {
	if err := c.RequirePlanner(); err != nil {
		return model.Transport{}, err
	}
	if sent {
		keys, err := b.sendKeys(ctx, transportID)
		if err != nil {
			return model.Transport{}, err
		}
		unlock := b.locks.Lock(keys...)
		defer unlock()
	}

	var out model.Transport
	err := b.mutate(ctx, c, "mark_sent", func(tx store.Store) error {
		t, err := liveTransport(ctx, tx, transportID)
		if err != nil {
			return err
		}
		if sent && (t.Status == model.StatusCancelled || t.IsCut) {
			return &model.Error{Kind: model.ErrInvalid, Entity: "transport", ID: transportID,
				Message: "cancelled or cut transports cannot be sent"}
		}
		if sent {
			if err := b.checkSend(ctx, tx, transportID); err != nil {
				return err
			}
		}
		t.SentToDriver = sent
		if err := tx.SaveTransport(ctx, &t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return model.Transport{}, err
	}
	b.notifier.Notify(ctx, notify.TransportUpdated, out)
	return out, nil
}

// sendKeys returns the assignment and resource lock keys of every slotted
// row of the transport.
func (b *Board) sendKeys(ctx context.Context, transportID string) ([]string, error) {
	rows, err := b.store.ListAssignments(ctx, store.AssignmentFilter{TransportID: transportID})
	if err != nil {
		return nil, err
	}
	keys := []string{}
	for _, a := range rows {
		keys = append(keys, assignmentKey(transportID, a.Date))
		if a.SlotID == nil {
			continue
		}
		slot, err := b.store.GetSlot(ctx, *a.SlotID)
		if err != nil {
			return nil, err
		}
		keys = append(keys,
			resourceKey(model.KindDriver, slot.DriverID, a.Date),
			resourceKey(model.KindTruck, slot.TruckID, a.Date))
	}
	return keys, nil
}

func (b *Board) checkSend(ctx context.Context, tx store.Store, transportID string) error {
	rows, err := tx.ListAssignments(ctx, store.AssignmentFilter{TransportID: transportID})
	if err != nil {
		return err
	}
	for _, a := range rows {
		if a.SlotID == nil {
			continue
		}
		slot, err := tx.GetSlot(ctx, *a.SlotID)
		if err != nil {
			return err
		}
		res, err := b.checker.CheckIn(ctx, tx, checkRequest(slot, transportID, a.Date))
		if err != nil {
			return err
		}
		if err := res.Err(); err != nil {
			return err
		}
	}
	return nil
}

// UpdateETA records the estimated arrival of the transport. nil clears it.
func (b *Board) UpdateETA(ctx context.Context, c model.Caller, transportID string, eta *time.Time) (model.Transport, error) {
	var out model.Transport
	err := b.mutate(ctx, c, "update_eta", func(tx store.Store) error {
		t, err := liveTransport(ctx, tx, transportID)
		if err != nil {
			return err
		}
		if eta != nil {
			v := eta.UTC()
			eta = &v
		}
		t.ETA = eta
		if err := tx.SaveTransport(ctx, &t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return model.Transport{}, err
	}
	b.notifier.Notify(ctx, notify.TransportETA, notify.ETAUpdate{TransportID: transportID, ETA: out.ETA})
	return out, nil
}
