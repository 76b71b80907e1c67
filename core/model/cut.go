package model

import "time"

// CutType classifies why a transport was pulled from the board.
type CutType string

const (
	CutTypeStorage  CutType = "STORAGE"
	CutTypeTransfer CutType = "TRANSFER"
	CutTypeReturn   CutType = "RETURN"
)

// CutInfo records the cut window of a transport. EndDate is nil exactly
// while the transport is still cut.
type CutInfo struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TransportID string     `json:"transportId" gorm:"type:varchar(36);not null;uniqueIndex"`
	CutType     CutType    `json:"cutType" gorm:"type:varchar(32);not null"`
	LocationID  string     `json:"locationId" gorm:"type:varchar(36);index;not null"`
	StartDate   time.Time  `json:"startDate" gorm:"type:date;not null"`
	EndDate     *time.Time `json:"endDate"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Covers reports whether day falls within the cut window.
func (c CutInfo) Covers(day time.Time) bool {
	day = Day(day)
	if day.Before(Day(c.StartDate)) {
		return false
	}
	return c.EndDate == nil || !day.After(Day(*c.EndDate))
}

// CutLocation is a place where cut transports are parked.
type CutLocation struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name      string    `json:"name" gorm:"not null"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
