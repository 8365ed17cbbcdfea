package authz

import (
	"sort"

	"github.com/gobwas/glob"
	"github.com/runt18/subversion/pkg/rules"
)

// node is one segment level of the filtered rule tree. Literal children
// hang off the children map; everything pattern-shaped lives in patterns
// so that the common all-literal case pays a single nil check.
type node struct {
	// segment is the rule segment text this node was created for. For
	// suffix nodes it is stored reversed, matching the rule model.
	segment string

	// matcher is the compiled glob for fnmatch segments, nil otherwise.
	matcher glob.Glob

	// rights holds the node-local access and the subtree bounds filled
	// in by finalization.
	rights limitedRights

	children map[string]*node
	patterns *patternChildren
}

// patternChildren collects the pattern-based children of a node.
type patternChildren struct {
	// any is the "*" child: exactly one arbitrary segment.
	any *node

	// anyVar is the "**" child: zero or more arbitrary segments.
	anyVar *node

	// prefixes holds "text*" children, sorted by their prefix text so
	// matches can be bounded by binary search.
	prefixes []*node

	// suffixes holds "*text" children, sorted by their reversed suffix
	// text. Reversing the queried segment turns suffix matching into the
	// same scan as prefixes.
	suffixes []*node

	// complex holds general glob children, unordered.
	complex []*node

	// repeat is set on "**" nodes themselves: they stay in the matching
	// set for every deeper level.
	repeat bool
}

func newNode(segment *rules.Segment) *node {
	n := &node{}
	if segment != nil {
		n.segment = segment.Pattern
		n.matcher = segment.Matcher
	}
	n.rights.access.sequence = noSequence
	return n
}

func (n *node) ensurePatterns() *patternChildren {
	if n.patterns == nil {
		n.patterns = &patternChildren{}
	}
	return n.patterns
}

// ensureNodeInList returns the node for segment from the sorted list,
// inserting a new one at its ordered position if missing.
func ensureNodeInList(list *[]*node, segment *rules.Segment) *node {
	nodes := *list
	idx := sort.Search(len(nodes), func(i int) bool {
		return nodes[i].segment >= segment.Pattern
	})
	if idx < len(nodes) && nodes[idx].segment == segment.Pattern {
		return nodes[idx]
	}
	child := newNode(segment)
	nodes = append(nodes, nil)
	copy(nodes[idx+1:], nodes[idx:])
	nodes[idx] = child
	*list = nodes
	return child
}

// ensureNodeInSet is the unordered variant used for complex patterns.
func ensureNodeInSet(list *[]*node, segment *rules.Segment) *node {
	for _, n := range *list {
		if n.segment == segment.Pattern {
			return n
		}
	}
	child := newNode(segment)
	*list = append(*list, child)
	return child
}
