package users

import (
	"fmt"
	"strings"
	"time"
)

// User is the profile record of the currently logged-in account as returned
// by the backend. The session layer owns it wholesale: it is replaced on
// login, profile refresh, and update, and never mutated field by field.
type User struct {
	ID          string    `json:"id,omitempty"`           // Unique identifier for the user (UUID)
	Email       string    `json:"email,omitempty"`        // User's email address
	Username    string    `json:"username,omitempty"`     // Unique username
	FirstName   string    `json:"first_name,omitempty"`   // First name of the user
	LastName    string    `json:"last_name,omitempty"`    // Last name of the user
	DateJoined  time.Time `json:"date_joined,omitempty"`  // Date and time when the user registered
	DisplayName string    `json:"display_name,omitempty"` // Preferred display name, may be empty
}

// FullName returns the user's first and last name joined with a space.
func (u User) FullName() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s", u.FirstName, u.LastName))
}

// Label returns the best human-readable identifier for the user.
func (u User) Label() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if name := u.FullName(); name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}
