package domain

type Role string

const (
	RoleResident Role = "RESIDENT"
	RoleAdmin    Role = "ADMIN"
)

// Actor is the authenticated user a session belongs to, as supplied by the
// session identity provider. Messages are tagged "mine" by comparing their
// UserID against the actor's ID.
type Actor struct {
	ID              int64
	Name            string
	Role            Role
	ApartmentID     int64
	ApartmentName   string
	BuildingName    string
	UnitNumber      string
	ProfileImageURL string
}

func (a Actor) Known() bool {
	return a.ID != 0
}
