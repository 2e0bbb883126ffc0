package domain

import "errors"

var (
	// ErrTokenNotFound is returned when an update references an unknown id.
	// The feed and the store race by design, so callers drop silently.
	ErrTokenNotFound = errors.New("token not found")

	// ErrUnsupportedField is returned when an update targets a field the
	// applier does not mutate.
	ErrUnsupportedField = errors.New("unsupported field")

	// ErrDuplicateToken is returned when a creation reuses an existing id.
	ErrDuplicateToken = errors.New("duplicate token id")

	// ErrUnknownCategory is returned for categories outside the fixed set.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrInvalidValue is returned for NaN or infinite numeric values.
	ErrInvalidValue = errors.New("invalid value")
)
