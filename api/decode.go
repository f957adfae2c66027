package api

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Decode unmarshals a response payload into v, mapping failures onto
// ErrDecoding so callers can treat all malformed-body cases uniformly.
func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return errors.Wrap(ErrDecoding, "empty payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(ErrDecoding, err.Error())
	}
	return nil
}
