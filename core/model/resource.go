package model

// ResourceKind distinguishes drivers, trucks and trailers.
type ResourceKind string

const (
	KindDriver  ResourceKind = "driver"
	KindTruck   ResourceKind = "truck"
	KindTrailer ResourceKind = "trailer"
)

// ParseResourceKind validates a kind received from a caller.
func ParseResourceKind(s string) (ResourceKind, error) {
	switch k := ResourceKind(s); k {
	case KindDriver, KindTruck, KindTrailer:
		return k, nil
	default:
		return "", Invalid("unknown resource kind %q", s)
	}
}

// Resource is a driver, truck or trailer usable for assignment.
type Resource struct {
	ID     string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Kind   ResourceKind `json:"kind" gorm:"type:varchar(16);index;not null"`
	Name   string       `json:"name" gorm:"not null"`
	Plate  string       `json:"plate,omitempty"`
	Active bool         `json:"active" gorm:"not null"`
}
