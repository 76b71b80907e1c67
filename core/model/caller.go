package model

// Role is the permission level resolved for a caller by the auth collaborator.
type Role string

const (
	RoleAdmin   Role = "admin"
	RolePlanner Role = "planner"
	RoleViewer  Role = "viewer"
)

// Caller identifies who performs an operation. It is passed explicitly to
// every planning operation instead of being read from shared state.
type Caller struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// System is the caller used by maintenance jobs and the CLI.
var System = Caller{UserID: "system", Role: RoleAdmin}

// CanPlan reports whether the caller may mutate the planning board.
func (c Caller) CanPlan() bool {
	return c.Role == RoleAdmin || c.Role == RolePlanner
}

// RequirePlanner returns ErrForbidden unless the caller may mutate the board.
func (c Caller) RequirePlanner() error {
	if !c.CanPlan() {
		return Forbidden(c.Role)
	}
	return nil
}
