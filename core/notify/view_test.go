package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/haulboard/core/model"
)

func roundTrip(t *testing.T, e Event) Event {
	t.Helper()
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	out, err := Decode(raw)
	require.NoError(t, err)
	return out
}

func TestDecodeRestoresPayloadTypes(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	e := roundTrip(t, Event{ID: "e1", Name: SlotDeleted, Data: SlotRemoved{SlotID: "s1", Date: day}})
	d, ok := e.Data.(SlotRemoved)
	require.True(t, ok)
	assert.Equal(t, "s1", d.SlotID)
	assert.True(t, d.Date.Equal(day))

	e = roundTrip(t, Event{Name: AssignmentUpdated, Data: model.AssignedTransport{Transport: model.Transport{ID: "t1"}}})
	_, ok = e.Data.(model.AssignedTransport)
	assert.True(t, ok)
}

func TestDecodeRejectsUnknown(t *testing.T) {
	_, err := Decode([]byte(`{"event":"nope:x","data":{}}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestViewConvergesOutOfOrder(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	slot := "s1"

	older := model.AssignedTransport{
		Assignment: model.TransportSlot{ID: "a1", TransportID: "t1", SlotID: &slot, Date: day, SlotOrder: 1, UpdatedAt: t0},
		Transport:  model.Transport{ID: "t1", OrderNumber: "A", UpdatedAt: t0},
	}
	newer := older
	newer.Assignment.SlotOrder = 5
	newer.Assignment.UpdatedAt = t0.Add(time.Minute)
	newer.Transport.UpdatedAt = t0.Add(time.Minute)
	newer.Transport.SentToDriver = true

	events := []Event{
		{Name: SlotCreated, Data: model.PlanningSlot{ID: slot, Day: day, Number: 1}},
		{Name: AssignmentUpdated, Data: newer},
		{Name: AssignmentUpdated, Data: older},
		{Name: AssignmentUpdated, Data: newer},
	}
	v := NewView()
	for _, e := range events {
		v.Apply(roundTrip(t, e))
	}
	tr, ok := v.Transport("t1")
	require.True(t, ok)
	assert.True(t, tr.SentToDriver)
	assert.Equal(t, []string{"t1"}, v.SlotTransports(slot, day))

	w := NewView()
	for i := len(events) - 1; i >= 0; i-- {
		w.Apply(events[i])
	}
	tr2, _ := w.Transport("t1")
	assert.Equal(t, tr.SentToDriver, tr2.SentToDriver)
	assert.Equal(t, v.SlotTransports(slot, day), w.SlotTransports(slot, day))
}

func TestViewSlotEventsConvergeOutOfOrder(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	d1, d2 := "D1", "D2"

	created := model.PlanningSlot{ID: "s1", Day: day, Number: 1, UpdatedAt: t0}
	first := created
	first.DriverID = &d1
	first.UpdatedAt = t0.Add(time.Minute)
	second := created
	second.DriverID = &d2
	second.UpdatedAt = t0.Add(2 * time.Minute)
	reordered := second
	reordered.Order = 3
	reordered.UpdatedAt = t0.Add(3 * time.Minute)

	events := []Event{
		{Name: SlotCreated, Data: created},
		{Name: DriverAssigned, Data: ResourceAssigned{Slot: first, ResourceID: d1}},
		{Name: DriverAssigned, Data: ResourceAssigned{Slot: second, ResourceID: d2}},
		{Name: SlotsReordered, Data: SlotsOrder{Date: day, Slots: []model.PlanningSlot{reordered}}},
	}
	orders := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 3, 0, 1}, {1, 3, 2, 0}}
	for _, order := range orders {
		v := NewView()
		for _, i := range order {
			v.Apply(roundTrip(t, events[i]))
		}
		s, ok := v.Slot("s1")
		require.True(t, ok, "order %v", order)
		assert.Equal(t, d2, model.StrVal(s.DriverID), "order %v", order)
		assert.Equal(t, 3, s.Order, "order %v", order)
	}
}

func TestViewDeletedSlotStaysDeleted(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	slot := "s1"
	d1 := "D1"

	v := NewView()
	v.Apply(roundTrip(t, Event{Name: SlotDeleted, Data: SlotRemoved{SlotID: slot, Date: day}}))
	v.Apply(roundTrip(t, Event{Name: SlotUpdated, Data: model.PlanningSlot{ID: slot, Day: day, UpdatedAt: t0}}))
	v.Apply(roundTrip(t, Event{Name: DriverAssigned, Data: ResourceAssigned{
		Slot: model.PlanningSlot{ID: slot, Day: day, DriverID: &d1, UpdatedAt: t0},
	}}))
	v.Apply(roundTrip(t, Event{Name: AssignmentUpdated, Data: model.AssignedTransport{
		Assignment: model.TransportSlot{ID: "a1", TransportID: "t1", SlotID: &slot, Date: day, UpdatedAt: t0},
		Transport:  model.Transport{ID: "t1", UpdatedAt: t0},
	}}))

	_, ok := v.Slot(slot)
	assert.False(t, ok)
	assert.Empty(t, v.SlotTransports(slot, day))
	_, ok = v.Transport("t1")
	assert.True(t, ok)
}

func TestViewSlotRemovalKeepsDateReservation(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	slot := "s1"
	v := NewView()
	v.Apply(Event{Name: SlotCreated, Data: model.PlanningSlot{ID: slot, Day: day}})
	v.Apply(Event{Name: AssignmentUpdated, Data: model.AssignedTransport{
		Assignment: model.TransportSlot{ID: "a1", TransportID: "t1", SlotID: &slot, Date: day},
		Transport:  model.Transport{ID: "t1"},
	}})
	v.Apply(Event{Name: SlotDeleted, Data: SlotRemoved{SlotID: slot, Date: day}})
	_, ok := v.Slot(slot)
	assert.False(t, ok)
	assert.Empty(t, v.SlotTransports(slot, day))
	_, ok = v.Transport("t1")
	assert.True(t, ok)
}

func TestViewETAAndCut(t *testing.T) {
	eta := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	v := NewView()
	v.Apply(Event{Name: TransportETA, Data: ETAUpdate{TransportID: "t1", ETA: &eta}})
	_, ok := v.Transport("t1")
	assert.False(t, ok)

	v.Apply(Event{Name: TransportUpdated, Data: model.Transport{ID: "t1"}})
	v.Apply(Event{Name: TransportETA, Data: ETAUpdate{TransportID: "t1", ETA: &eta}})
	tr, _ := v.Transport("t1")
	require.NotNil(t, tr.ETA)
	assert.True(t, tr.ETA.Equal(eta))

	v.Apply(Event{Name: CutUpdated, Data: CutState{
		Transport: model.Transport{ID: "t1", IsCut: true, UpdatedAt: eta},
		CutInfo:   &model.CutInfo{TransportID: "t1", CutType: model.CutTypeStorage},
	}})
	ci, ok := v.CutInfo("t1")
	require.True(t, ok)
	assert.Equal(t, model.CutTypeStorage, ci.CutType)
}
