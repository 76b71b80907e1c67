// Package notify publishes board changes to every connected view.
//
// Each committed mutation produces one Event. Events are delivered to
// in-process subscribers through the topic bus and, when a remote Publisher
// is configured, to the external bus. Delivery is best effort: a failed
// publish is logged and counted, it never reaches the caller of the mutation.
package notify

import (
	"strings"
	"time"

	"github.com/kilianp07/haulboard/core/model"
)

// Event names. The prefix before ':' is the entity kind and doubles as the
// topic the event is routed to.
const (
	SlotCreated        = "slot:create"
	SlotUpdated        = "slot:update"
	SlotDeleted        = "slot:delete"
	SlotsReordered     = "slots:reorder"
	DriverAssigned     = "driver:assign"
	TruckAssigned      = "truck:assign"
	AssignmentUpdated  = "assignment:update"
	TransportUpdated   = "transport:update"
	TransportCancelled = "transport:cancelled"
	TransportETA       = "transport:eta-update"
	CutUpdated         = "cut:update"
	LocationCreated    = "location:create"
	LocationDeleted    = "location:delete"
)

// BroadcastTopic is the remote topic carrying board-wide events.
const BroadcastTopic = "broadcast"

var broadcast = map[string]struct{}{
	DriverAssigned: {},
	TruckAssigned:  {},
	SlotsReordered: {},
}

// Event is a typed change notification. Data holds the denormalized state of
// the changed entity, never a delta.
type Event struct {
	ID   string    `json:"id"`
	Name string    `json:"event"`
	Data any       `json:"data"`
	Time time.Time `json:"time"`
}

// Kind returns the entity kind of the event.
func (e Event) Kind() string {
	if i := strings.IndexByte(e.Name, ':'); i >= 0 {
		return e.Name[:i]
	}
	return e.Name
}

// Broadcast reports whether the event goes to every subscriber.
func (e Event) Broadcast() bool {
	_, ok := broadcast[e.Name]
	return ok
}

// Topic is the remote topic the event is published on.
func (e Event) Topic() string {
	if e.Broadcast() {
		return BroadcastTopic
	}
	return e.Kind()
}

// SlotRemoved is the payload of SlotDeleted.
type SlotRemoved struct {
	SlotID string    `json:"slotId"`
	Date   time.Time `json:"date"`
	// Unassigned lists the transports whose slot reference was cleared.
	Unassigned []string `json:"unassigned"`
}

// SlotsOrder is the payload of SlotsReordered.
type SlotsOrder struct {
	Date  time.Time            `json:"date"`
	Slots []model.PlanningSlot `json:"slots"`
}

// ResourceAssigned is the payload of DriverAssigned and TruckAssigned.
type ResourceAssigned struct {
	Slot       model.PlanningSlot `json:"slot"`
	ResourceID string             `json:"resourceId,omitempty"`
	Name       string             `json:"name,omitempty"`
}

// ETAUpdate is the payload of TransportETA.
type ETAUpdate struct {
	TransportID string     `json:"transportId"`
	ETA         *time.Time `json:"eta"`
}

// Cancellation is the payload of TransportCancelled.
type Cancellation struct {
	Transport   model.Transport       `json:"transport"`
	Assignments []model.TransportSlot `json:"assignments"`
}

// CutState is the payload of CutUpdated.
type CutState struct {
	Transport model.Transport `json:"transport"`
	CutInfo   *model.CutInfo  `json:"cutInfo,omitempty"`
}

// LocationRemoved is the payload of LocationDeleted.
type LocationRemoved struct {
	LocationID string `json:"locationId"`
}
