package notify

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/haulboard/core/model"
)

// Decode parses an event received from the remote bus and restores the
// typed payload for its name.
func Decode(raw []byte) (Event, error) {
	var env struct {
		ID   string          `json:"id"`
		Name string          `json:"event"`
		Data json.RawMessage `json:"data"`
		Time time.Time       `json:"time"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	var (
		data any
		err  error
	)
	switch env.Name {
	case SlotCreated, SlotUpdated:
		data, err = decodeAs[model.PlanningSlot](env.Data)
	case SlotDeleted:
		data, err = decodeAs[SlotRemoved](env.Data)
	case SlotsReordered:
		data, err = decodeAs[SlotsOrder](env.Data)
	case DriverAssigned, TruckAssigned:
		data, err = decodeAs[ResourceAssigned](env.Data)
	case AssignmentUpdated:
		data, err = decodeAs[model.AssignedTransport](env.Data)
	case TransportUpdated:
		data, err = decodeAs[model.Transport](env.Data)
	case TransportCancelled:
		data, err = decodeAs[Cancellation](env.Data)
	case TransportETA:
		data, err = decodeAs[ETAUpdate](env.Data)
	case CutUpdated:
		data, err = decodeAs[CutState](env.Data)
	case LocationCreated:
		data, err = decodeAs[model.CutLocation](env.Data)
	case LocationDeleted:
		data, err = decodeAs[LocationRemoved](env.Data)
	default:
		return Event{}, fmt.Errorf("decode event: unknown name %q", env.Name)
	}
	if err != nil {
		return Event{}, fmt.Errorf("decode %s: %w", env.Name, err)
	}
	return Event{ID: env.ID, Name: env.Name, Data: data, Time: env.Time}, nil
}

func decodeAs[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// View is a subscriber-side replica of the board. Every event is applied as
// an upsert keyed by entity id, so replaying or reordering events converges
// to the same state. Rows are never replaced by an older version, and a
// deleted slot stays deleted whatever arrives after its removal.
type View struct {
	mu          sync.RWMutex
	slots       map[string]model.PlanningSlot
	removed     map[string]struct{}
	assignments map[string]model.TransportSlot
	transports  map[string]model.Transport
	cutInfos    map[string]model.CutInfo
}

func NewView() *View {
	return &View{
		slots:       map[string]model.PlanningSlot{},
		removed:     map[string]struct{}{},
		assignments: map[string]model.TransportSlot{},
		transports:  map[string]model.Transport{},
		cutInfos:    map[string]model.CutInfo{},
	}
}

// Apply merges e into the view. Events with payloads the view does not
// track are ignored.
func (v *View) Apply(e Event) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch d := e.Data.(type) {
	case model.PlanningSlot:
		v.putSlot(d)
	case SlotRemoved:
		v.removed[d.SlotID] = struct{}{}
		delete(v.slots, d.SlotID)
		for id, a := range v.assignments {
			if a.InSlot(d.SlotID) {
				a.SlotID = nil
				v.assignments[id] = a
			}
		}
	case SlotsOrder:
		for _, s := range d.Slots {
			v.putSlot(s)
		}
	case ResourceAssigned:
		v.putSlot(d.Slot)
	case model.AssignedTransport:
		v.putAssignment(d.Assignment)
		v.putTransport(d.Transport)
	case model.Transport:
		v.putTransport(d)
	case Cancellation:
		v.putTransport(d.Transport)
		for _, a := range d.Assignments {
			v.putAssignment(a)
		}
	case ETAUpdate:
		if t, ok := v.transports[d.TransportID]; ok {
			t.ETA = d.ETA
			v.transports[d.TransportID] = t
		}
	case CutState:
		v.putTransport(d.Transport)
		if d.CutInfo != nil {
			v.cutInfos[d.CutInfo.TransportID] = *d.CutInfo
		}
	}
}

func (v *View) putSlot(s model.PlanningSlot) {
	if _, gone := v.removed[s.ID]; gone {
		return
	}
	if cur, ok := v.slots[s.ID]; ok && cur.UpdatedAt.After(s.UpdatedAt) {
		return
	}
	v.slots[s.ID] = s
}

func (v *View) putTransport(t model.Transport) {
	if cur, ok := v.transports[t.ID]; ok && cur.UpdatedAt.After(t.UpdatedAt) {
		return
	}
	v.transports[t.ID] = t.Clone()
}

func (v *View) putAssignment(a model.TransportSlot) {
	if cur, ok := v.assignments[a.ID]; ok && cur.UpdatedAt.After(a.UpdatedAt) {
		return
	}
	if a.SlotID != nil {
		if _, gone := v.removed[*a.SlotID]; gone {
			a.SlotID = nil
		}
	}
	v.assignments[a.ID] = a
}

// Slot returns the replicated slot.
func (v *View) Slot(id string) (model.PlanningSlot, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.slots[id]
	return s, ok
}

// Transport returns the replicated transport.
func (v *View) Transport(id string) (model.Transport, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	t, ok := v.transports[id]
	return t, ok
}

// CutInfo returns the replicated cut info of a transport.
func (v *View) CutInfo(transportID string) (model.CutInfo, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	c, ok := v.cutInfos[transportID]
	return c, ok
}

// SlotTransports returns the ids of the transports in slotID on day, in
// display order.
func (v *View) SlotTransports(slotID string, day time.Time) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	day = model.Day(day)
	rows := []model.TransportSlot{}
	for _, a := range v.assignments {
		if a.InSlot(slotID) && a.Date.Equal(day) {
			rows = append(rows, a)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return model.AssignmentLess(rows[i], rows[j]) })
	ids := make([]string, len(rows))
	for i, a := range rows {
		ids[i] = a.TransportID
	}
	return ids
}
