// Package auth holds the request actor, the central authorization policy
// and the route guards built on the session.
package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/chela967/medicare/internal/platform/session"
)

// Roles.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// ValidRoles is the closed set of user roles.
var ValidRoles = map[string]bool{
	RolePatient: true,
	RoleDoctor:  true,
	RoleAdmin:   true,
}

// Actor is the signed-in user performing an operation. DoctorID is the
// doctor profile id and is zero for non-doctors.
type Actor struct {
	UserID   int64
	Role     string
	Name     string
	DoctorID int64
}

func (a Actor) IsAdmin() bool  { return a.Role == RoleAdmin }
func (a Actor) IsDoctor() bool { return a.Role == RoleDoctor }

// ActorFrom reads the actor from the request session.
func ActorFrom(c echo.Context) Actor {
	s := session.From(c)
	return Actor{UserID: s.UserID, Role: s.Role, Name: s.Name, DoctorID: s.DoctorID}
}

// HomeFor returns the landing page for a role.
func HomeFor(role string) string {
	switch role {
	case RoleAdmin:
		return "/admin"
	case RoleDoctor:
		return "/doctor"
	case RolePatient:
		return "/patient"
	}
	return "/login"
}
