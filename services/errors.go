package services

import (
	"errors"
	"fmt"
)

// Shared error kinds for the tournament core. Every operation failure wraps
// one of these so both the HTTP layer and the realtime gateway can map them
// with errors.Is.
var (
	// Unknown tournament/round/player reference.
	ErrNotFound = errors.New("requested resource not found")

	// Operation not legal in the tournament's current status.
	ErrInvalidState = errors.New("operation not allowed in current tournament state")

	// Actor is not a member of the tournament.
	ErrForbidden = errors.New("actor is not a member of this tournament")

	// Second score for the same player and round.
	ErrDuplicateSubmission = errors.New("score already submitted for this round")

	// Malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
)

// Specific failures, pre-wrapped so errors.Is against the kinds above works.
var (
	ErrEmptyGameSequence  = fmt.Errorf("%w: game sequence must not be empty", ErrValidation)
	ErrRoundCountMismatch = fmt.Errorf("%w: max rounds must match the game sequence length", ErrValidation)
	ErrScoreOutOfRange    = fmt.Errorf("%w: score must be a non-negative finite number", ErrValidation)
	ErrNoPlayers          = fmt.Errorf("%w: tournament needs at least one player to start", ErrInvalidState)
	ErrPasscodeMismatch   = fmt.Errorf("%w: tournament passcode does not match", ErrForbidden)
)

// ErrorCode returns the stable wire code for an error, for the gateway's
// error events and the HTTP error envelope.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrDuplicateSubmission):
		return "DUPLICATE_SUBMISSION"
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	default:
		return "INTERNAL"
	}
}
