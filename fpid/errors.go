package fpid

import "errors"

// Error kinds shared across the whole module (§7). Components wrap these
// with fmt.Errorf("...: %w", ...) and context-specific detail; callers
// match with errors.Is.
var (
	// ErrUnknownID is returned when a lookup of an id not present locally
	// required its presence.
	ErrUnknownID = errors.New("fpmas: unknown id")

	// ErrInvalidLayerSwitch is returned by switch_layer on a non-LOCAL
	// edge.
	ErrInvalidLayerSwitch = errors.New("fpmas: switch_layer on non-local edge")

	// ErrCodecFailure marks a payload serialization failure. It is fatal
	// for the barrier in which it occurs, because partial progress on an
	// all-to-all exchange cannot be undone.
	ErrCodecFailure = errors.New("fpmas: codec failure")

	// ErrOutOfMobility is surfaced to agent code, not swallowed by the
	// core, when a move targets a cell outside the agent's current MOVE
	// set.
	ErrOutOfMobility = errors.New("fpmas: move target outside mobility range")

	// ErrCommunicationFailure marks a lower-layer transport error. Fatal.
	ErrCommunicationFailure = errors.New("fpmas: communication failure")
)
