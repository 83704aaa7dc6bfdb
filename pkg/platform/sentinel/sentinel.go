// Package sentinel defines the errors infrastructure layers report as
// bare facts. Stores and clients return these (usually wrapped);
// services translate them into coded domain errors at the boundary.
// Validation failures never use sentinels, they go straight through
// pkg/domain-errors.
package sentinel

import "errors"

var (
	// ErrNotFound: the entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict: an optimistic version check lost to a concurrent writer.
	ErrConflict = errors.New("conflict")
	// ErrExpired: a token or session passed its deadline.
	ErrExpired = errors.New("expired")
	// ErrSuperseded: an in-flight load was replaced by a newer one for
	// the same pane before it settled.
	ErrSuperseded = errors.New("superseded")
	// ErrInvalidState: the entity cannot accept the operation in its
	// current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable: a dependency is down or unreachable.
	ErrUnavailable = errors.New("unavailable")
)
