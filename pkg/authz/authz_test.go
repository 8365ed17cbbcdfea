package authz

import (
	"errors"
	"strings"
	"testing"

	"github.com/runt18/subversion/pkg/rules"
)

func mustDocument(t *testing.T, conf string) *rules.Document {
	t.Helper()
	doc, err := rules.Parse(strings.NewReader(conf))
	if err != nil {
		t.Fatalf("parsing rules: %v", err)
	}
	return doc
}

// checkCase is one access query with its expected answer
type checkCase struct {
	name       string
	repository string
	path       string
	user       string
	required   rules.Rights
	want       bool
}

func runChecks(t *testing.T, a *Authorizer, cases []checkCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := a.CheckAccess(tc.repository, tc.path, tc.user, tc.required)
			if err != nil {
				t.Fatalf("CheckAccess(%q, %q, %q, %v): %v",
					tc.repository, tc.path, tc.user, tc.required, err)
			}
			if got != tc.want {
				t.Errorf("CheckAccess(%q, %q, %q, %v) = %v, want %v",
					tc.repository, tc.path, tc.user, tc.required, got, tc.want)
			}
		})
	}
}

func TestBasicAccess(t *testing.T) {
	a := NewAuthorizer(mustDocument(t, `
[/trunk]
alice = r
`))
	runChecks(t, a, []checkCase{
		{"rule applies below its path", "r", "/trunk/src", "alice", rules.Read, true},
		{"other users get nothing", "r", "/trunk/src", "bob", rules.Read, false},
		{"implicit root default denies", "r", "/branches", "alice", rules.Read, false},
		{"granted read is not write", "r", "/trunk/src", "alice", rules.Write, false},
	})
}

func TestRevokedSubtree(t *testing.T) {
	a := NewAuthorizer(mustDocument(t, `
[/]
* = r
[/secret]
* =
`))
	runChecks(t, a, []checkCase{
		{"revocation covers the subtree", "r", "/secret/x", "alice", rules.Read, false},
		{"sibling keeps inherited access", "r", "/other", "alice", rules.Read, true},
		{"root recursive sees the denied node", "r", "/", "alice", rules.Read | rules.Recursive, false},
		{"clean subtree passes recursively", "r", "/other", "alice", rules.Read | rules.Recursive, true},
	})
}

func TestWildcardSegment(t *testing.T) {
	a := NewAuthorizer(mustDocument(t, `
[/]
alice = r
[/*/private]
alice =
`))
	runChecks(t, a, []checkCase{
		{"wildcard revocation matches", "r", "/a/private", "alice", rules.Read, false},
		{"wildcard revocation matches elsewhere", "r", "/b/private", "alice", rules.Read, false},
		{"unmatched sibling inherits root", "r", "/a/public", "alice", rules.Read, true},
	})
}

func TestRecursiveWildcard(t *testing.T) {
	a := NewAuthorizer(mustDocument(t, `
[/a/**/z]
alice = w
`))
	runChecks(t, a, []checkCase{
		{"matches zero segments", "r", "/a/z", "alice", rules.Write, true},
		{"matches many segments", "r", "/a/x/y/z", "alice", rules.Write, true},
		{"intermediate paths are not covered", "r", "/a/x/y", "alice", rules.Write, false},
		{"unrelated paths are not covered", "r", "/b/z", "alice", rules.Write, false},
	})
}

func TestSuffixPattern(t *testing.T) {
	a := NewAuthorizer(mustDocument(t, `
[/docs/*.md]
* = r
`))
	runChecks(t, a, []checkCase{
		{"suffix matches", "r", "/docs/readme.md", "alice", rules.Read, true},
		{"suffix matches anonymous", "r", "/docs/readme.md", "", rules.Read, true},
		{"other extension denied", "r", "/docs/readme.txt", "alice", rules.Read, false},
		{"suffix needs the directory", "r", "/img/readme.md", "alice", rules.Read, false},
	})
}

func TestPrefixPattern(t *testing.T) {
	a := NewAuthorizer(mustDocument(t, `
[/li*]
alice = r
[/lib*]
alice = rw
`))
	runChecks(t, a, []checkCase{
		{"longer prefix rule wins", "r", "/library", "alice", rules.Read | rules.Write, true},
		{"shorter prefix still matches alone", "r", "/line", "alice", rules.Read, true},
		{"shorter prefix grants no write", "r", "/line", "alice", rules.Write, false},
		{"non-matching segment denied", "r", "/misc", "alice", rules.Read, false},
	})
}

func TestGlobPattern(t *testing.T) {
	a := NewAuthorizer(mustDocument(t, `
[/v[12]x]
alice = r
`))
	runChecks(t, a, []checkCase{
		{"glob class matches", "r", "/v1x", "alice", rules.Read, true},
		{"glob class matches alternative", "r", "/v2x", "alice", rules.Read, true},
		{"outside the class denied", "r", "/v3x", "alice", rules.Read, false},
	})
}

func TestRulePrecedence(t *testing.T) {
	// Both rules match /p; the one defined later wins outright, the
	// rights are not unioned.
	a := NewAuthorizer(mustDocument(t, `
[/p]
alice = r
[/*]
alice = rw
`))
	runChecks(t, a, []checkCase{
		{"later rule overrides", "r", "/p", "alice", rules.Write, true},
	})

	reversed := NewAuthorizer(mustDocument(t, `
[/*]
alice = rw
[/p]
alice = r
`))
	runChecks(t, reversed, []checkCase{
		{"later literal rule overrides wildcard", "r", "/p", "alice", rules.Write, false},
		{"later literal rule still reads", "r", "/p", "alice", rules.Read, true},
	})
}

func TestAnyPathQuery(t *testing.T) {
	a := NewAuthorizer(mustDocument(t, `
[/x]
alice = w
`))
	runChecks(t, a, []checkCase{
		{"write exists somewhere", "r", "", "alice", rules.Write, true},
		{"no rule means nothing anywhere", "r", "", "bob", rules.Write, false},
		{"recursive bit is ignored here", "r", "", "alice", rules.Write | rules.Recursive, true},
	})
}

func TestAnonymousVersusNamed(t *testing.T) {
	a := NewAuthorizer(mustDocument(t, `
[/]
$anonymous = r
$authenticated = rw
`))
	runChecks(t, a, []checkCase{
		{"anonymous reads", "r", "/x", "", rules.Read, true},
		{"anonymous cannot write", "r", "/x", "", rules.Write, false},
		{"authenticated writes", "r", "/x", "alice", rules.Write, true},
		// A user literally named "$anonymous" is an authenticated user.
		{"dollar-named user is authenticated", "r", "/x", "$anonymous", rules.Write, true},
	})
}

func TestRepositoryScope(t *testing.T) {
	a := NewAuthorizer(mustDocument(t, `
[projA:/x]
alice = rw
[/y]
alice = r
`))
	runChecks(t, a, []checkCase{
		{"scoped rule applies in its repository", "projA", "/x", "alice", rules.Write, true},
		{"scoped rule ignored elsewhere", "projB", "/x", "alice", rules.Write, false},
		{"unscoped rule applies everywhere", "projB", "/y", "alice", rules.Read, true},
		{"any-repository query skips scoped rules", "", "/x", "alice", rules.Write, false},
		{"any-repository query keeps unscoped rules", "", "/y", "alice", rules.Read, true},
	})
}

func TestGroupRules(t *testing.T) {
	a := NewAuthorizer(mustDocument(t, `
[groups]
devs = alice, bob

[/code]
@devs = rw
`))
	runChecks(t, a, []checkCase{
		{"group member has access", "r", "/code/x", "bob", rules.Write, true},
		{"non-member denied", "r", "/code/x", "carol", rules.Write, false},
	})
}

func TestPathNormalization(t *testing.T) {
	a := NewAuthorizer(mustDocument(t, `
[/a/b]
alice = r
`))
	runChecks(t, a, []checkCase{
		{"redundant separators collapse", "r", "//a///b//", "alice", rules.Read, true},
		{"trailing separator tolerated", "r", "/a/b/", "alice", rules.Read, true},
		{"normalized form agrees", "r", "/a/b", "alice", rules.Read, true},
	})
}

func TestRootQuery(t *testing.T) {
	a := NewAuthorizer(mustDocument(t, `
[/]
alice = r
`))
	runChecks(t, a, []checkCase{
		{"root path reads", "r", "/", "alice", rules.Read, true},
		{"root path cannot write", "r", "/", "alice", rules.Write, false},
		{"root recursive over uniform tree", "r", "/", "alice", rules.Read | rules.Recursive, true},
	})
}

func TestMalformedPath(t *testing.T) {
	a := NewAuthorizer(mustDocument(t, `
[/x]
alice = r
`))
	_, err := a.CheckAccess("r", "x", "alice", rules.Read)
	if !errors.Is(err, ErrMalformedPath) {
		t.Fatalf("CheckAccess with relative path: got %v, want ErrMalformedPath", err)
	}
}

func TestRuleCollision(t *testing.T) {
	// The parser refuses duplicate sections, so collide two hand-built
	// rules on the same leaf.
	doc := &rules.Document{ACLs: []*rules.ACL{
		{
			Sequence:       1,
			Rule:           []rules.Segment{{Kind: rules.Literal, Pattern: "a"}},
			HasAuthnAccess: true,
			AuthnAccess:    rules.Read,
		},
		{
			Sequence:       2,
			Rule:           []rules.Segment{{Kind: rules.Literal, Pattern: "a"}},
			HasAuthnAccess: true,
			AuthnAccess:    rules.Write,
		},
	}}
	_, err := NewAuthorizer(doc).CheckAccess("r", "/a", "alice", rules.Read)
	if !errors.Is(err, ErrRuleCollision) {
		t.Fatalf("colliding rules: got %v, want ErrRuleCollision", err)
	}
}

// The production-shaped configuration used by the cache and invariant
// tests below.
const mixedConf = `
[groups]
devs = alice, bob

[/]
* = r
[/secret]
* =
[/secret/shared]
@devs = rw
[/releases/v*]
alice = r
[/docs/*.txt]
$authenticated = r
[/work/**/out]
bob = w
[projA:/x]
carol = rw
`

var mixedQueries = []checkCase{
	{"root read", "r", "/", "alice", rules.Read, true},
	{"secret denied", "r", "/secret/x", "alice", rules.Read, false},
	{"secret shared for devs", "r", "/secret/shared/f", "bob", rules.Write, true},
	{"secret shared not for others", "r", "/secret/shared/f", "carol", rules.Write, false},
	{"release prefix", "r", "/releases/v1.2", "alice", rules.Read, true},
	{"docs suffix", "r", "/docs/notes.txt", "bob", rules.Read, true},
	{"deep out dir", "r", "/work/a/b/out", "bob", rules.Write, true},
	{"scoped repo rule", "projA", "/x", "carol", rules.Write, true},
	{"scoped repo rule elsewhere", "projB", "/x", "carol", rules.Write, false},
	{"anonymous root read", "r", "/", "", rules.Read, true},
	{"anonymous secret", "r", "/secret/x", "", rules.Read, false},
	{"recursive on clean subtree", "r", "/releases", "bob", rules.Read | rules.Recursive, true},
	{"recursive on mixed subtree", "r", "/secret", "carol", rules.Read | rules.Recursive, false},
}

// Answers must not depend on cache hits, MRU reordering or evictions.
func TestCacheTransparency(t *testing.T) {
	doc := mustDocument(t, mixedConf)

	shared := NewAuthorizer(doc)
	var want []bool
	for _, tc := range mixedQueries {
		// A fresh authorizer per query never hits its cache.
		fresh := NewAuthorizer(doc)
		got, err := fresh.CheckAccess(tc.repository, tc.path, tc.user, tc.required)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s (uncached) = %v, want %v", tc.name, got, tc.want)
		}
		want = append(want, got)
	}

	// Run the full list twice against one handle: the first pass builds
	// and evicts entries (more than four principals are in play), the
	// second hits reordered cache slots.
	for pass := 0; pass < 2; pass++ {
		for i, tc := range mixedQueries {
			got, err := shared.CheckAccess(tc.repository, tc.path, tc.user, tc.required)
			if err != nil {
				t.Fatalf("pass %d, %s: %v", pass, tc.name, err)
			}
			if got != want[i] {
				t.Errorf("pass %d, %s = %v, want %v", pass, tc.name, got, want[i])
			}
		}
	}
}

// Consecutive queries under a common directory reuse the walked prefix;
// the answers must match a cold walk.
func TestSiblingLookupReuse(t *testing.T) {
	conf := `
[/deep/dir/a]
alice = r
[/deep/dir/b]
alice = rw
`
	doc := mustDocument(t, conf)
	a := NewAuthorizer(doc)

	queries := []checkCase{
		{"first walk", "r", "/deep/dir/a", "alice", rules.Read, true},
		{"sibling via reuse", "r", "/deep/dir/b", "alice", rules.Write, true},
		{"sibling without rule", "r", "/deep/dir/c", "alice", rules.Read, false},
		{"repeat of first", "r", "/deep/dir/a", "alice", rules.Write, false},
		{"shorter path forces rewalk", "r", "/deep", "alice", rules.Read, false},
		{"deeper extension", "r", "/deep/dir/a/sub", "alice", rules.Read, true},
	}
	for _, tc := range queries {
		cold, err := NewAuthorizer(doc).CheckAccess(tc.repository, tc.path, tc.user, tc.required)
		if err != nil {
			t.Fatalf("%s (cold): %v", tc.name, err)
		}
		warm, err := a.CheckAccess(tc.repository, tc.path, tc.user, tc.required)
		if err != nil {
			t.Fatalf("%s (warm): %v", tc.name, err)
		}
		if cold != tc.want || warm != tc.want {
			t.Errorf("%s: cold=%v warm=%v, want %v", tc.name, cold, warm, tc.want)
		}
	}

	// The state really did retain the walked parent directory of the
	// last query.
	if got := string(a.cache[0].state.parentPath); got != "/deep/dir/a" {
		t.Errorf("parentPath after sibling queries = %q, want %q", got, "/deep/dir/a")
	}
}

func walkNodes(n *node, fn func(*node)) {
	fn(n)
	for _, child := range n.children {
		walkNodes(child, fn)
	}
	if p := n.patterns; p != nil {
		if p.any != nil {
			walkNodes(p.any, fn)
		}
		if p.anyVar != nil {
			walkNodes(p.anyVar, fn)
		}
		for _, child := range p.prefixes {
			walkNodes(child, fn)
		}
		for _, child := range p.suffixes {
			walkNodes(child, fn)
		}
		for _, child := range p.complex {
			walkNodes(child, fn)
		}
	}
}

// After finalization every node's bounds must bracket its local access,
// and min may never exceed max.
func TestSubtreeBounds(t *testing.T) {
	doc := mustDocument(t, mixedConf)
	for _, user := range []string{"", "alice", "bob", "carol"} {
		root, err := buildFilteredTree(doc, "projA", user)
		if err != nil {
			t.Fatalf("building tree for %q: %v", user, err)
		}
		walkNodes(root, func(n *node) {
			if n.rights.max&n.rights.min != n.rights.min {
				t.Errorf("user %q, node %q: min %v not within max %v",
					user, n.segment, n.rights.min, n.rights.max)
			}
			if n.rights.hasLocalRule() {
				local := n.rights.access.rights
				if local&n.rights.min != n.rights.min || n.rights.max&local != local {
					t.Errorf("user %q, node %q: local %v outside bounds [%v, %v]",
						user, n.segment, local, n.rights.min, n.rights.max)
				}
			}
		})
		if !root.rights.hasLocalRule() {
			t.Errorf("user %q: root has no access record after finalization", user)
		}
	}
}

// Rebuilding from the same document must answer identically.
func TestRebuildIdempotence(t *testing.T) {
	doc := mustDocument(t, mixedConf)
	first := NewAuthorizer(doc)
	second := NewAuthorizer(doc)
	for _, tc := range mixedQueries {
		a, err := first.CheckAccess(tc.repository, tc.path, tc.user, tc.required)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		b, err := second.CheckAccess(tc.repository, tc.path, tc.user, tc.required)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if a != b {
			t.Errorf("%s: rebuild changed the answer: %v vs %v", tc.name, a, b)
		}
	}
}

func TestEmptyDocument(t *testing.T) {
	a := NewAuthorizer(&rules.Document{})
	runChecks(t, a, []checkCase{
		{"nothing is granted", "r", "/x", "alice", rules.Read, false},
		{"not even at the root", "r", "/", "alice", rules.Read, false},
		{"any-path query denied", "r", "", "alice", rules.Read, false},
	})
}
