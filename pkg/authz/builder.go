package authz

import (
	"fmt"

	"github.com/runt18/subversion/pkg/rules"
)

// nodeSegmentPair records which tree node a rule segment resolved to
// during the previous insertion.
type nodeSegmentPair struct {
	segment *rules.Segment
	node    *node
}

// constructionContext carries the (segment, node) trail of the previous
// insertion so that consecutive rules sharing a path prefix can resume at
// the deepest common node instead of rewalking from the root.
type constructionContext struct {
	path []nodeSegmentPair
}

// buildFilteredTree folds every rule relevant to (repository, user) into
// a fresh tree and finalizes it. The result is ready for lookups.
func buildFilteredTree(doc *rules.Document, repository, user string) (*node, error) {
	root := newNode(nil)
	ctx := &constructionContext{path: make([]nodeSegmentPair, 0, 32)}

	for _, acl := range doc.ACLs {
		if err := processACL(ctx, acl, root, repository, user); err != nil {
			return nil, err
		}
	}

	// Without an explicit root rule, access defaults to "deny all". The
	// reserved sequence number 0 never overrules a real rule.
	if !root.rights.hasLocalRule() {
		root.rights.access = access{sequence: 0, rights: rules.None}
	}

	finalizeUp(root, &root.rights.access, root)

	varRights := limitedRights{min: rules.Read | rules.Write, max: rules.None}
	finalizeDown(root, varRights)

	return root, nil
}

// processACL inserts acl's path into the tree if the rule says anything
// about (repository, user), reusing the context trail for the shared
// prefix with the previous rule.
func processACL(ctx *constructionContext, acl *rules.ACL, root *node, repository, user string) error {
	rights, ok := acl.Evaluate(user, repository)
	if !ok {
		return nil
	}
	acc := access{sequence: acl.Sequence, rights: rights}

	n := root
	i := 0
	for ; i < len(ctx.path); i++ {
		step := ctx.path[i]
		if step.node == nil || i >= len(acl.Rule) ||
			step.segment.Kind != acl.Rule[i].Kind ||
			step.segment.Pattern != acl.Rule[i].Pattern {
			break
		}
		n = step.node
	}
	ctx.path = ctx.path[:i]

	return insertPath(ctx, n, acc, acl.Rule[i:])
}

// insertPath creates (or reuses) one node per remaining segment below n
// and records acc at the final node.
func insertPath(ctx *constructionContext, n *node, acc access, segments []rules.Segment) error {
	for i := range segments {
		segment := &segments[i]
		var child *node

		switch segment.Kind {
		case rules.AnySegment:
			patterns := n.ensurePatterns()
			if patterns.any == nil {
				patterns.any = newNode(segment)
			}
			child = patterns.any

		case rules.AnyRecursive:
			patterns := n.ensurePatterns()
			if patterns.anyVar == nil {
				patterns.anyVar = newNode(segment)
			}
			child = patterns.anyVar
			child.ensurePatterns().repeat = true

		case rules.Prefix:
			child = ensureNodeInList(&n.ensurePatterns().prefixes, segment)

		case rules.Suffix:
			child = ensureNodeInList(&n.ensurePatterns().suffixes, segment)

		case rules.Fnmatch:
			child = ensureNodeInSet(&n.ensurePatterns().complex, segment)

		default:
			if n.children == nil {
				n.children = make(map[string]*node)
			}
			child = n.children[segment.Pattern]
			if child == nil {
				child = newNode(segment)
				n.children[segment.Pattern] = child
			}
		}

		ctx.path = append(ctx.path, nodeSegmentPair{segment: segment, node: child})
		n = child
	}

	// The parser rejects two sections for the same path, so a second rule
	// landing on the same leaf is a broken invariant, not user input.
	if n.rights.hasLocalRule() {
		return fmt.Errorf("%w: rules %d and %d",
			ErrRuleCollision, n.rights.access.sequence, acc.sequence)
	}
	n.rights.access = acc
	return nil
}
