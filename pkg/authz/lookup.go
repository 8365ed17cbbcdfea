package authz

import (
	"sort"
	"strings"

	"github.com/runt18/subversion/pkg/rules"
)

// lookupState is the reusable per-tree query state. Recycling it between
// lookups keeps the node lists and path buffers warm, and parentPath /
// parentRights let a query for a sibling path skip the shared prefix
// walk entirely.
type lookupState struct {
	// rights aggregates, over the currently matching nodes, the highest-
	// precedence local rule and the optimistic/pessimistic bounds for any
	// continuation of the path walked so far.
	rights limitedRights

	// current is the set of tree nodes compatible with the path walked so
	// far; next is its under-construction successor for the following
	// segment.
	current []*node
	next    []*node

	// scratch holds the segment being matched. Suffix matching reverses
	// it in place and restores it afterwards.
	scratch []byte

	// parentPath is the deepest fully-walked directory; current and
	// parentRights apply to it.
	parentPath   []byte
	parentRights limitedRights
}

func newLookupState() *lookupState {
	return &lookupState{
		current:    make([]*node, 0, 4),
		next:       make([]*node, 0, 4),
		scratch:    make([]byte, 0, 200),
		parentPath: make([]byte, 0, 200),
	}
}

// init prepares the state for a lookup of path under root. If the
// previous lookup left parentPath as a proper directory prefix of path,
// the matching node set is still valid and only the remaining tail needs
// walking; init then returns that tail. Otherwise it resets the state to
// the root and returns path unchanged.
func (s *lookupState) init(root *node, path string) string {
	if n := len(s.parentPath); n > 0 && len(path) > n &&
		path[n] == '/' && path[:n] == string(s.parentPath) {
		s.rights = s.parentRights
		return path[n:]
	}

	s.rights = root.rights
	s.parentRights = root.rights

	s.next = s.next[:0]
	s.current = append(s.current[:0], root)

	// "**" also matches zero segments, so a root-level "**" child is
	// active from the start.
	if p := root.patterns; p != nil && p.anyVar != nil {
		child := p.anyVar
		s.rights.combineAccess(&child.rights)
		s.rights.combineLimits(&child.rights)
		s.current = append(s.current, child)
	}

	s.parentPath = s.parentPath[:0]
	s.scratch = s.scratch[:0]

	return path
}

// addNext enlists n as a match for the next segment and folds its rights
// into the aggregate. A nil n is a no-op, which simplifies the callers.
func (s *lookupState) addNext(n *node) {
	if n == nil {
		return
	}
	s.rights.combineAccess(&n.rights)
	s.rights.combineLimits(&n.rights)
	s.next = append(s.next, n)

	// A "**" child matches the empty sequence, so it applies at the same
	// level as its parent.
	if p := n.patterns; p != nil && p.anyVar != nil {
		child := p.anyVar
		s.rights.combineAccess(&child.rights)
		s.rights.combineLimits(&child.rights)
		s.next = append(s.next, child)
	}
}

// addPrefixMatches adds every node whose stored prefix is a leading part
// of segment. The list is sorted, so candidates end at segment's
// insertion point; everything past it sorts after segment and cannot be
// a prefix of it.
func (s *lookupState) addPrefixMatches(segment []byte, prefixes []*node) {
	query := string(segment)
	end := sort.Search(len(prefixes), func(i int) bool {
		return prefixes[i].segment > query
	})
	for _, n := range prefixes[:end] {
		if len(n.segment) <= len(query) && query[:len(n.segment)] == n.segment {
			s.addNext(n)
		}
	}
}

// addComplexMatches adds every node whose compiled glob matches segment.
func (s *lookupState) addComplexMatches(segment []byte, patterns []*node) {
	query := string(segment)
	for _, n := range patterns {
		if n.matcher != nil && n.matcher.Match(query) {
			s.addNext(n)
		}
	}
}

// nextSegment copies the first segment of path into buf and returns it
// together with the remainder behind the separator run. An empty
// remainder means path is exhausted.
func nextSegment(buf []byte, path string) ([]byte, string) {
	idx := strings.IndexByte(path, '/')
	if idx < 0 {
		return append(buf, path...), ""
	}
	buf = append(buf, path[:idx]...)
	for idx < len(path) && path[idx] == '/' {
		idx++
	}
	return buf, path[idx:]
}

// lookup follows path through the rule tree and reports whether the
// required rights are granted. required must not contain Recursive; with
// recursive set, every path at or below path must hold the rights. path
// need not be normalized.
func (s *lookupState) lookup(path string, required rules.Rights, recursive bool) bool {
	for len(path) > 0 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}

	// Walk the tree segment by segment until either the path or the set
	// of matching nodes runs out.
	for len(s.current) > 0 && len(path) > 0 {
		// Even the best case in this subtree is not enough.
		if s.rights.max&required != required {
			return false
		}
		// The worst case already suffices.
		if s.rights.min&required == required {
			return true
		}

		s.scratch, path = nextSegment(s.scratch[:0], path)
		segment := s.scratch

		s.next = s.next[:0]
		s.rights.access = access{sequence: noSequence, rights: rules.None}
		// Identity values: the first combined node fully determines the
		// bounds. If no node matches, the parent inheritance below
		// applies instead.
		s.rights.min = rules.Read | rules.Write
		s.rights.max = rules.None

		// Keep parentPath in sync with what current will be once next is
		// swapped in.
		if len(path) > 0 {
			s.parentPath = append(s.parentPath, '/')
			s.parentPath = append(s.parentPath, segment...)
		}

		for _, n := range s.current {
			if n.children != nil {
				s.addNext(n.children[string(segment)])
			}
			if p := n.patterns; p != nil {
				s.addNext(p.any)

				// A "**" node matches any number of segments, so it
				// stays active for the next level too.
				if p.repeat {
					s.addNext(n)
				}

				if len(p.prefixes) > 0 {
					s.addPrefixMatches(segment, p.prefixes)
				}
				if len(p.complex) > 0 {
					s.addComplexMatches(segment, p.complex)
				}
				if len(p.suffixes) > 0 {
					// Suffixes are reversed prefixes. Restore the
					// segment afterwards; other nodes still need it.
					reverseBytes(segment)
					s.addPrefixMatches(segment, p.suffixes)
					reverseBytes(segment)
				}
			}
		}

		// No rule applied to this segment directly: the parent's rights
		// cover at least the segment itself and possibly parts of its
		// subtree.
		if !s.rights.hasLocalRule() {
			s.rights.access = s.parentRights.access
			s.rights.min &= s.parentRights.access.rights
			s.rights.max |= s.parentRights.access.rights
		}

		if len(path) > 0 {
			s.current, s.next = s.next, s.current
			s.parentRights = s.rights
		}
	}

	// For recursive checks, no potential sub-path may fall below the
	// required rights. Whether those paths exist in the repository is not
	// our concern.
	if recursive {
		return s.rights.min&required == required
	}

	return s.rights.access.rights&required == required
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
