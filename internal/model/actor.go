package model

// Role tags the kind of caller acting on the engine.
type Role string

const (
	RolePassenger  Role = "passenger"
	RoleDriver     Role = "driver"
	RoleDispatcher Role = "dispatcher"
	RoleAdmin      Role = "admin"
)

// ParseRole maps a header value to a Role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RolePassenger, RoleDriver, RoleDispatcher, RoleAdmin:
		return r, true
	}
	return "", false
}

// Actor identifies who is performing an operation. It is passed explicitly
// into every state machine call.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func Passenger(id string) Actor  { return Actor{ID: id, Role: RolePassenger} }
func Driver(id string) Actor     { return Actor{ID: id, Role: RoleDriver} }
func Dispatcher(id string) Actor { return Actor{ID: id, Role: RoleDispatcher} }
func Admin(id string) Actor      { return Actor{ID: id, Role: RoleAdmin} }

// IsStaff reports whether the actor is a dispatcher or an admin.
func (a Actor) IsStaff() bool {
	return a.Role == RoleDispatcher || a.Role == RoleAdmin
}

// IsPassengerOf reports whether the actor owns the booking.
func (a Actor) IsPassengerOf(b *Booking) bool {
	return a.Role == RolePassenger && a.ID == b.PassengerID
}

// IsDriverOf reports whether the actor is the driver assigned to the booking.
func (a Actor) IsDriverOf(b *Booking) bool {
	return a.Role == RoleDriver && b.HasDriver() && a.ID == b.DriverID
}
