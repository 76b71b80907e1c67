package model

import "time"

// PlanningSlot is one ordered working unit of a calendar day, optionally
// bound to a driver and a truck.
type PlanningSlot struct {
	ID              string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Day             time.Time `json:"day" gorm:"type:date;index;not null"`
	Number          int       `json:"number" gorm:"not null"`
	Order           int       `json:"order" gorm:"column:display_order;not null"`
	DriverID        *string   `json:"driverId" gorm:"type:varchar(36);index"`
	TruckID         *string   `json:"truckId" gorm:"type:varchar(36);index"`
	DriverStartNote string    `json:"driverStartNote,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TransportSlot binds a transport to a slot for one date. A nil SlotID keeps
// the date reserved without a slot.
type TransportSlot struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TransportID string    `json:"transportId" gorm:"type:varchar(36);not null;uniqueIndex:idx_transport_slot_day"`
	SlotID      *string   `json:"slotId" gorm:"type:varchar(36);index"`
	Date        time.Time `json:"date" gorm:"type:date;not null;uniqueIndex:idx_transport_slot_day;index"`
	SlotOrder   int       `json:"slotOrder" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// InSlot reports whether the assignment is bound to slotID.
func (a TransportSlot) InSlot(slotID string) bool {
	return a.SlotID != nil && *a.SlotID == slotID
}

// AssignedTransport pairs an assignment row with its transport.
type AssignedTransport struct {
	Assignment TransportSlot `json:"assignment"`
	Transport  Transport     `json:"transport"`
}

// SlotPlan is a slot with its ordered transports for one date.
type SlotPlan struct {
	Date       time.Time           `json:"date"`
	Slot       PlanningSlot        `json:"slot"`
	Transports []AssignedTransport `json:"transports"`
}

// DayPlan is the derived board of one day.
type DayPlan struct {
	Date  time.Time  `json:"date"`
	Slots []SlotPlan `json:"slots"`
	// Unassigned holds transports that reserve the date without a slot.
	Unassigned []AssignedTransport `json:"unassigned"`
}

// StrPtr returns a pointer to s, or nil when s is empty.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StrVal dereferences p, returning "" for nil.
func StrVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// AssignmentLess orders rows of one slot: slotOrder first, then creation
// time, then id. Equal slotOrder values are legal.
func AssignmentLess(a, b TransportSlot) bool {
	if a.SlotOrder != b.SlotOrder {
		return a.SlotOrder < b.SlotOrder
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
