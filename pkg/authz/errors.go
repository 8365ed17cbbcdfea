package authz

import "errors"

var (
	// ErrRuleCollision is returned when two rules claim exactly the same
	// path for the same user. The parser rejects such configurations, so
	// hitting this means the rule list violates its invariants.
	ErrRuleCollision = errors.New("conflicting rules for the same path")

	// ErrMalformedPath is returned when a queried path does not start
	// with '/'.
	ErrMalformedPath = errors.New("path must start with '/'")
)
