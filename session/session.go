// Package session owns the canonical in-memory authenticated-session state:
// the logged-in user and their token pair. All mutation goes through the
// Manager, refreshes are serialized by the single-flight Coordinator, and a
// background monitor renews the access token before it expires.
package session

import (
	"github.com/evolve-healthtech/evolve-go/users"
)

// State is the session-level position in the login state machine.
type State int

const (
	// StateLoggedOut means no user and no tokens are held.
	StateLoggedOut State = iota
	// StateAuthenticated means a user and refresh token are held. The access
	// token may be transiently absent, e.g. right after restoration before
	// the first refresh completes.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	default:
		return "logged_out"
	}
}

// Session is the authoritative in-memory record. The refresh token's presence
// is the authority for "is there a session".
type Session struct {
	User         *users.User
	AccessToken  string
	RefreshToken string
}

// State derives the state-machine position from the held fields.
func (s Session) State() State {
	if s.User != nil && s.RefreshToken != "" {
		return StateAuthenticated
	}
	return StateLoggedOut
}
