package authz

// finalizeUp is the bottom-up finalization pass: it computes each node's
// min/max subtree bounds from its effective access and its children, then
// folds them into the parent. The root passes itself as its own parent,
// which is idempotent for the bound combination.
func finalizeUp(parent *node, inherited *access, n *node) {
	acc := inherited
	if n.rights.hasLocalRule() {
		acc = &n.rights.access
	}

	n.rights.min = acc.rights
	n.rights.max = acc.rights

	for _, child := range n.children {
		finalizeUp(n, acc, child)
	}
	if p := n.patterns; p != nil {
		if p.any != nil {
			finalizeUp(n, acc, p.any)
		}
		if p.anyVar != nil {
			finalizeUp(n, acc, p.anyVar)
		}
		for _, child := range p.prefixes {
			finalizeUp(n, acc, child)
		}
		for _, child := range p.suffixes {
			finalizeUp(n, acc, child)
		}
		for _, child := range p.complex {
			finalizeUp(n, acc, child)
		}
	}

	parent.rights.combineLimits(&n.rights)
}

// finalizeDown is the top-down pass: varRights accumulates the bounds of
// every "**" rule passed on the way down, since those rules implicitly
// apply to all deeper levels. The initial accumulator must be the
// identity (min = all rights, max = none).
func finalizeDown(n *node, varRights limitedRights) {
	n.rights.combineLimits(&varRights)

	if p := n.patterns; p != nil && p.anyVar != nil {
		varRights.combineLimits(&p.anyVar.rights)
	}

	for _, child := range n.children {
		finalizeDown(child, varRights)
	}
	if p := n.patterns; p != nil {
		if p.any != nil {
			finalizeDown(p.any, varRights)
		}
		if p.anyVar != nil {
			finalizeDown(p.anyVar, varRights)
		}
		for _, child := range p.prefixes {
			finalizeDown(child, varRights)
		}
		for _, child := range p.suffixes {
			finalizeDown(child, varRights)
		}
		for _, child := range p.complex {
			finalizeDown(child, varRights)
		}
	}
}
