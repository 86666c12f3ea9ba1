package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string for use as an entity identifier.
func NewID() string {
	return ulid.Make().String()
}

// ULIDSource hands out task identifiers backed by NewID.
type ULIDSource struct{}

// Next returns a fresh ULID.
func (ULIDSource) Next() string {
	return NewID()
}
