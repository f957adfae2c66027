package api

import (
	"fmt"

	"github.com/pkg/errors"
)

// Client error taxonomy. Callers match with errors.Is; only ErrSessionExpired
// carries a side effect (the session has been cleared by the time it is
// returned).
var (
	ErrInvalidURL      = errors.New("invalid URL")
	ErrRequestFailed   = errors.New("request failed")
	ErrInvalidResponse = errors.New("invalid response")
	ErrDecoding        = errors.New("decoding error")
	ErrEncoding        = errors.New("encoding error")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrSessionExpired  = errors.New("session expired")
	ErrCustom          = errors.New("client error")
)

// ServerError is any non-2xx response outside the authorization retry
// protocol. It never mutates session state.
type ServerError struct {
	Code int
	Body string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Body)
}

// Custom wraps an ad-hoc, caller-supplied message into the taxonomy.
func Custom(message string) error {
	return errors.Wrap(ErrCustom, message)
}
