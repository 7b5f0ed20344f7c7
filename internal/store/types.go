package store

import "encoding/json"

// State is the materialization state of an entity set.
type State string

const (
	StatePending  State = "PENDING"
	StateFinished State = "FINISHED"
	StateError    State = "ERROR"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateFinished, StateError:
		return true
	}
	return false
}

// EntitySet is one registry row.
type EntitySet struct {
	ID          string
	EntityType  string
	LookupType  string
	Name        string
	Description string

	// Definition is the JSON document the set was materialized from. It is
	// opaque to the store and kept in canonical form.
	Definition json.RawMessage

	State     State
	Count     int64
	Transient bool

	// Seq orders listings.
	Seq int64
}
