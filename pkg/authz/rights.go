package authz

import "github.com/runt18/subversion/pkg/rules"

// noSequence marks an access record that no rule has set. It loses
// against every real sequence number, including the reserved root
// default 0.
const noSequence = -1

// access is the rights one rule grants, tagged with the rule's position
// in the configuration. When several rules meet at a node, the one with
// the highest sequence number wins.
type access struct {
	sequence int
	rights   rules.Rights
}

// limitedRights pairs the node-local access with the minimal and maximal
// rights found anywhere in the node's subtree. The bounds let lookups
// prune whole subtrees with a single comparison.
type limitedRights struct {
	access access
	min    rules.Rights
	max    rules.Rights
}

// hasLocalRule returns true if some rule applies to this node directly,
// as opposed to only somewhere below it.
func (lr *limitedRights) hasLocalRule() bool {
	return lr.access.sequence != noSequence
}

// combineAccess keeps whichever of the two access records has the higher
// precedence.
func (lr *limitedRights) combineAccess(other *limitedRights) {
	if lr.access.sequence < other.access.sequence {
		lr.access = other.access
	}
}

// combineLimits widens lr's bounds to cover other's.
func (lr *limitedRights) combineLimits(other *limitedRights) {
	lr.max |= other.max
	lr.min &= other.min
}
