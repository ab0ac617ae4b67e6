package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDataUnavailable means the upstream case data could not be fetched or
	// parsed after all retries.
	ErrDataUnavailable = errors.New("case data unavailable")

	// ErrInsufficientHistory means the data holds no complete 7-day window.
	ErrInsufficientHistory = errors.New("insufficient reporting history for a 7-day window")

	// ErrInvalidBias is returned for a non-positive or non-finite ascertainment bias.
	ErrInvalidBias = errors.New("ascertainment bias must be a positive finite number")

	// ErrInvalidEventSize is returned for a negative event size.
	ErrInvalidEventSize = errors.New("event size must not be negative")

	// ErrUnknownDistrict is returned when a location resolves to no district.
	ErrUnknownDistrict = errors.New("no district at location")
)

// JoinMismatchError lists keys from one source that matched no district.
type JoinMismatchError struct {
	Source string // "cases", "population", "geometry" or "estimates"
	Keys   []string
}

func (e *JoinMismatchError) Error() string {
	return fmt.Sprintf("%s: %d unmatched district key(s): %s", e.Source, len(e.Keys), strings.Join(e.Keys, ", "))
}
