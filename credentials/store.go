package credentials

import (
	"github.com/evolve-healthtech/evolve-go/users"
)

// Store defines the interface for durable credential persistence. The session
// manager is the only component that writes to it; everything it holds
// survives a process restart.
//
// An empty token string passed to Save means "delete that entry", not "leave
// unchanged". Load is best-effort: a stored user record that can no longer be
// decoded is reported as absent, never as an error.
type Store interface {
	// Save persists the user record and both tokens. Each entry is written
	// (or deleted, when its value is empty/nil) individually.
	Save(user *users.User, accessToken, refreshToken string) error

	// Load reads back whatever is persisted. Absent entries come back as
	// nil / empty strings.
	Load() (user *users.User, accessToken, refreshToken string, err error)

	// Clear removes all entries. Safe to call when already empty.
	Clear() error
}
