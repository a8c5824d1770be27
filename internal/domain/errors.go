package domain

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateCorrelation is returned when a verification record already
	// exists for a correlation id. The caller must regenerate a fresh id.
	ErrDuplicateCorrelation = errors.New("duplicate correlation id")

	// ErrAlreadyTerminal is returned when a terminal write hits a record that
	// already reached a terminal state. The first terminal state is retained.
	ErrAlreadyTerminal = errors.New("verification already terminal")

	// ErrAlreadyConverted is returned when a session has already been linked
	// to a lead. Success-equivalent for duplicate submissions.
	ErrAlreadyConverted = errors.New("session already converted")

	// ErrUnconfigured is returned when an external collaborator (validation
	// webhook, sync sink) has no URL configured. Not a failure.
	ErrUnconfigured = errors.New("not configured")
)
