package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransportStatus is the coarse lifecycle state of a transport.
type TransportStatus string

const (
	StatusPlanned   TransportStatus = "PLANNED"
	StatusOngoing   TransportStatus = "ONGOING"
	StatusCompleted TransportStatus = "COMPLETED"
	StatusCancelled TransportStatus = "CANCELLED"
)

// Transport is a haulage job placed on the planning board.
type Transport struct {
	ID            string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderNumber   string          `json:"orderNumber" gorm:"not null"`
	Reference     string          `json:"reference" gorm:"not null;index"`
	ClientID      string          `json:"clientId,omitempty" gorm:"type:varchar(36);index"`
	Status        TransportStatus `json:"status" gorm:"type:varchar(16);not null;default:'PLANNED'"`
	CurrentStatus string          `json:"currentStatus,omitempty"`
	SentToDriver  bool            `json:"sentToDriver" gorm:"not null;default:false"`
	IsCut         bool            `json:"isCut" gorm:"not null;default:false;index"`
	IsRestored    bool            `json:"isRestored" gorm:"not null;default:false"`
	IsArchived    bool            `json:"isArchived" gorm:"not null;default:false"`
	IsDeleted     bool            `json:"isDeleted" gorm:"not null;default:false"`
	// OriginalTransportID links a recreated transport to the one it was cut from.
	OriginalTransportID *string       `json:"originalTransportId,omitempty" gorm:"type:varchar(36);index"`
	PickupRef           string        `json:"pickupRef,omitempty"`
	DropoffRef          string        `json:"dropoffRef,omitempty"`
	TruckID             *string       `json:"truckId,omitempty" gorm:"type:varchar(36)"`
	TrailerID           *string       `json:"trailerId,omitempty" gorm:"type:varchar(36)"`
	ETA                 *time.Time    `json:"eta,omitempty"`
	Destinations        []Destination `json:"destinations,omitempty" gorm:"foreignKey:TransportID;constraint:OnDelete:CASCADE"`
	Notes               []Note        `json:"notes,omitempty" gorm:"foreignKey:TransportID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// Destination is one ordered drop of a transport.
type Destination struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TransportID string `json:"transportId" gorm:"type:varchar(36);index;not null"`
	Position    int    `json:"position"`
	Address     string `json:"address"`
}

// Note is a free-text remark attached to a transport.
type Note struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TransportID string    `json:"transportId" gorm:"type:varchar(36);index;not null"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewID returns a fresh identifier for any stored entity.
func NewID() string { return uuid.NewString() }

// NormalizeReference derives the case-insensitive reference of an order number.
func NormalizeReference(orderNumber string) string {
	return strings.ToUpper(strings.TrimSpace(orderNumber))
}

// NewTransport returns an active, planned transport for the order number.
func NewTransport(orderNumber string) Transport {
	return Transport{
		ID:          NewID(),
		OrderNumber: orderNumber,
		Reference:   NormalizeReference(orderNumber),
		Status:      StatusPlanned,
	}
}

// Active reports whether the transport belongs on the live board.
func (t Transport) Active() bool {
	return !t.IsCut && !t.IsArchived && !t.IsDeleted
}

// Clone returns a copy that shares no slices with t.
func (t Transport) Clone() Transport {
	c := t
	if t.Destinations != nil {
		c.Destinations = append([]Destination(nil), t.Destinations...)
	}
	if t.Notes != nil {
		c.Notes = append([]Note(nil), t.Notes...)
	}
	return c
}
