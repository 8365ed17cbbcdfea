package rules

import "errors"

var (
	// ErrDuplicateSection is returned when two sections name the same
	// repository and path.
	ErrDuplicateSection = errors.New("duplicate section")

	// ErrUnknownGroup is returned when a rule or group refers to a group
	// that is never defined.
	ErrUnknownGroup = errors.New("unknown group")

	// ErrUnknownAlias is returned when a rule or group refers to an alias
	// that is never defined.
	ErrUnknownAlias = errors.New("unknown alias")

	// ErrGroupCycle is returned when group definitions refer to each
	// other in a cycle.
	ErrGroupCycle = errors.New("circular group definition")

	// ErrGroupsElsewhere is returned when a separate groups file is used
	// and the rules file defines groups as well.
	ErrGroupsElsewhere = errors.New("groups defined in both rules and groups file")
)
