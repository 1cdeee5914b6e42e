// Package models - API request types.
package models

import (
	"encoding/json"
	"fmt"
)

// AdmitRequest is the body of POST /api/v1/admit. Identifier is decoded
// loosely so that non-string values reach the admission type guard instead
// of failing JSON decoding.
type AdmitRequest struct {
	Identifier any `json:"identifier"`

	present bool
}

// HasIdentifier reports whether the identifier field was present in the body,
// including an explicit null.
func (r *AdmitRequest) HasIdentifier() bool {
	return r.present
}

func (r *AdmitRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("request body must be a JSON object: %w", err)
	}
	field, ok := raw["identifier"]
	if !ok {
		return nil
	}
	r.present = true
	if err := json.Unmarshal(field, &r.Identifier); err != nil {
		return fmt.Errorf("invalid identifier: %w", err)
	}
	return nil
}
