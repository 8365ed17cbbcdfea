package authz

import (
	"fmt"

	"github.com/runt18/subversion/pkg/rules"
)

// AnyRepository is substituted for an empty repository name in queries.
// Only rules that are not scoped to a particular repository apply to it.
const AnyRepository = "[ANY_REPOSITORY]"

// filteredCacheSize is the number of per-(user, repository) rule trees an
// Authorizer keeps. Servers typically alternate between very few
// principals per connection, so a handful of slots is plenty.
const filteredCacheSize = 4

// userRules is one cache entry: the rule tree filtered for a single
// (user, repository) pair plus its reusable lookup state.
type userRules struct {
	user       string
	repository string
	root       *node
	state      *lookupState
}

// Authorizer answers access queries against a parsed authorization
// document. It keeps a small most-recently-used cache of filtered rule
// trees, so queries mutate internal state: an Authorizer must not be
// used from multiple goroutines concurrently. Independent Authorizer
// values are fully isolated from each other.
type Authorizer struct {
	doc *rules.Document

	// cache holds up to filteredCacheSize entries, most recently used
	// first.
	cache []*userRules
}

// NewAuthorizer creates an authorizer for doc.
func NewAuthorizer(doc *rules.Document) *Authorizer {
	return &Authorizer{
		doc:   doc,
		cache: make([]*userRules, 0, filteredCacheSize),
	}
}

// filteredTree returns the cached rule tree for (repository, user),
// building and caching it on a miss.
func (a *Authorizer) filteredTree(repository, user string) (*userRules, error) {
	for i, entry := range a.cache {
		if entry.user != user || entry.repository != repository {
			continue
		}
		if i > 0 {
			copy(a.cache[1:i+1], a.cache[:i])
			a.cache[0] = entry
		}
		return entry, nil
	}

	// Release the oldest entry before building the replacement.
	if len(a.cache) == filteredCacheSize {
		a.cache[filteredCacheSize-1] = nil
		a.cache = a.cache[:filteredCacheSize-1]
	}

	root, err := buildFilteredTree(a.doc, repository, user)
	if err != nil {
		return nil, err
	}
	entry := &userRules{
		user:       user,
		repository: repository,
		root:       root,
		state:      newLookupState(),
	}

	a.cache = append(a.cache, nil)
	copy(a.cache[1:], a.cache)
	a.cache[0] = entry
	return entry, nil
}

// CheckAccess reports whether user holds the required rights on path in
// repository.
//
// An empty repository means "any repository": only rules without a
// repository scope apply. An empty user denotes the anonymous user. An
// empty path asks whether the user holds the rights on any path at all;
// otherwise path must begin with '/' (redundant separators are
// tolerated). If required contains Recursive, the remaining rights must
// hold on every path at or below path.
func (a *Authorizer) CheckAccess(repository, path, user string, required rules.Rights) (bool, error) {
	if repository == "" {
		repository = AnyRepository
	}

	entry, err := a.filteredTree(repository, user)
	if err != nil {
		return false, err
	}

	if path == "" {
		want := required &^ rules.Recursive
		return entry.root.rights.max&want == want, nil
	}

	if path[0] != '/' {
		return false, fmt.Errorf("%w: %q", ErrMalformedPath, path)
	}

	remainder := entry.state.init(entry.root, path)
	return entry.state.lookup(remainder,
		required&^rules.Recursive,
		required&rules.Recursive != 0), nil
}
