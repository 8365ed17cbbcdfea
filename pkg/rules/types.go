package rules

import "github.com/gobwas/glob"

// SegmentKind classifies one path segment of a rule by its pattern
// category. The lookup engine dispatches on it when building and walking
// the rule tree.
type SegmentKind uint8

const (
	// Literal matches exactly its own text.
	Literal SegmentKind = iota
	// Prefix is a "text*" segment; Pattern holds the text before the star.
	Prefix
	// Suffix is a "*text" segment; Pattern holds the text after the star,
	// reversed, so suffix scans can reuse the prefix machinery.
	Suffix
	// Fnmatch is a general glob segment; Matcher holds the compiled form.
	Fnmatch
	// AnySegment is "*": exactly one arbitrary segment.
	AnySegment
	// AnyRecursive is "**": zero or more arbitrary segments.
	AnyRecursive
)

// Segment is one path component of a rule.
type Segment struct {
	Kind    SegmentKind
	Pattern string
	Matcher glob.Glob
}

// ACL is a single path rule: the parsed segments of its path, its position
// in the configuration, and the per-principal access it grants. Group and
// alias references are already expanded into UserAccess.
type ACL struct {
	// Sequence is the 1-based position of the rule's section in the
	// configuration. 0 is reserved for the implicit deny-all root default.
	Sequence int

	// Repository scopes the rule to one repository; empty means any.
	Repository string

	// Rule is the parsed path, one Segment per component. Empty for a
	// rule on the repository root.
	Rule []Segment

	// AnonAccess applies to the anonymous user when HasAnonAccess is set.
	HasAnonAccess bool
	AnonAccess    Rights

	// AuthnAccess applies to any authenticated user without a more
	// specific entry, when HasAuthnAccess is set.
	HasAuthnAccess bool
	AuthnAccess    Rights

	// UserAccess maps user names to their rights under this rule, with
	// group memberships and aliases expanded.
	UserAccess map[string]Rights
}

// Evaluate returns the rights this rule grants to user on repository. The
// second return value distinguishes "rule does not apply" from "applies
// and grants nothing". The empty user denotes the anonymous user.
func (a *ACL) Evaluate(user, repository string) (Rights, bool) {
	if a.Repository != "" && a.Repository != repository {
		return None, false
	}
	if user == "" {
		if a.HasAnonAccess {
			return a.AnonAccess, true
		}
		return None, false
	}
	if rights, ok := a.UserAccess[user]; ok {
		return rights, true
	}
	if a.HasAuthnAccess {
		return a.AuthnAccess, true
	}
	return None, false
}

// Document is the parsed authorization configuration: all path rules in
// file order.
type Document struct {
	ACLs []*ACL
}
