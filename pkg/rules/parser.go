package rules

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/gobwas/glob"
)

// Parse reads an authorization configuration and returns its rules as an
// ordered Document. The format is INI-style: a [groups] section defining
// group memberships, an [aliases] section, and one section per path rule,
// named either [/path] (any repository) or [repo:/path]. Entries map a
// principal ("user", "@group", "&alias", "*", "$anonymous",
// "$authenticated") to an access spec ("r", "w", "rw" or empty).
func Parse(r io.Reader) (*Document, error) {
	return build(r, nil)
}

// ParseWithGroups is Parse with group definitions supplied from a separate
// reader. The rules input must not define groups of its own.
func ParseWithGroups(rulesIn, groupsIn io.Reader) (*Document, error) {
	return build(rulesIn, groupsIn)
}

type rawEntry struct {
	key   string
	value string
	line  int
}

type rawSection struct {
	name    string
	line    int
	entries []rawEntry
}

func build(rulesIn, groupsIn io.Reader) (*Document, error) {
	sections, err := collectSections(rulesIn)
	if err != nil {
		return nil, err
	}

	res := &resolver{
		groups:   make(map[string]rawEntry),
		aliases:  make(map[string]string),
		resolved: make(map[string][]string),
		visiting: make(map[string]bool),
	}

	if groupsIn != nil {
		groupSections, err := collectSections(groupsIn)
		if err != nil {
			return nil, err
		}
		for _, sec := range groupSections {
			if sec.name != "groups" {
				return nil, fmt.Errorf("line %d: groups file may only contain [groups], got [%s]",
					sec.line, sec.name)
			}
			if err := res.addGroups(sec); err != nil {
				return nil, err
			}
		}
	}

	// Groups and aliases first; rules may refer to them regardless of
	// where the sections appear in the file.
	for _, sec := range sections {
		switch sec.name {
		case "groups":
			if groupsIn != nil {
				return nil, fmt.Errorf("line %d: %w", sec.line, ErrGroupsElsewhere)
			}
			if err := res.addGroups(sec); err != nil {
				return nil, err
			}
		case "aliases":
			for _, e := range sec.entries {
				if _, dup := res.aliases[e.key]; dup {
					return nil, fmt.Errorf("line %d: alias %q defined twice", e.line, e.key)
				}
				res.aliases[e.key] = e.value
			}
		}
	}

	doc := &Document{}
	seen := make(map[string]bool)
	for _, sec := range sections {
		if sec.name == "groups" || sec.name == "aliases" {
			continue
		}
		repository, path, ok := splitSectionName(sec.name)
		if !ok {
			return nil, fmt.Errorf("line %d: unrecognized section [%s]", sec.line, sec.name)
		}

		rule, canonical, err := parseRulePath(path)
		if err != nil {
			return nil, fmt.Errorf("line %d: section [%s]: %v", sec.line, sec.name, err)
		}
		key := repository + ":" + canonical
		if seen[key] {
			return nil, fmt.Errorf("line %d: %w: [%s]", sec.line, ErrDuplicateSection, sec.name)
		}
		seen[key] = true

		acl, err := buildACL(res, sec, repository, rule, len(doc.ACLs)+1)
		if err != nil {
			return nil, err
		}
		doc.ACLs = append(doc.ACLs, acl)
	}

	return doc, nil
}

func collectSections(r io.Reader) ([]rawSection, error) {
	var sections []rawSection
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}
		if line[0] == '[' {
			if line[len(line)-1] != ']' {
				return nil, fmt.Errorf("line %d: malformed section header %q", lineNo, line)
			}
			name := strings.TrimSpace(line[1 : len(line)-1])
			if name == "" {
				return nil, fmt.Errorf("line %d: empty section name", lineNo)
			}
			sections = append(sections, rawSection{name: name, line: lineNo})
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, fmt.Errorf("line %d: expected 'name = value', got %q", lineNo, line)
		}
		if len(sections) == 0 {
			return nil, fmt.Errorf("line %d: entry outside of any section", lineNo)
		}
		key := strings.TrimSpace(line[:eq])
		if key == "" {
			return nil, fmt.Errorf("line %d: entry with empty name", lineNo)
		}
		sec := &sections[len(sections)-1]
		sec.entries = append(sec.entries, rawEntry{
			key:   key,
			value: strings.TrimSpace(line[eq+1:]),
			line:  lineNo,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	return sections, nil
}

// resolver expands group and alias references into plain user names.
// Resolution is memoized per group; the visiting set detects cycles.
type resolver struct {
	groups   map[string]rawEntry
	aliases  map[string]string
	resolved map[string][]string
	visiting map[string]bool
}

func (r *resolver) addGroups(sec rawSection) error {
	for _, e := range sec.entries {
		if _, dup := r.groups[e.key]; dup {
			return fmt.Errorf("line %d: group %q defined twice", e.line, e.key)
		}
		r.groups[e.key] = e
	}
	return nil
}

func (r *resolver) users(group string, line int) ([]string, error) {
	if users, ok := r.resolved[group]; ok {
		return users, nil
	}
	def, ok := r.groups[group]
	if !ok {
		return nil, fmt.Errorf("line %d: %w: @%s", line, ErrUnknownGroup, group)
	}
	if r.visiting[group] {
		return nil, fmt.Errorf("line %d: %w: @%s", line, ErrGroupCycle, group)
	}
	r.visiting[group] = true
	defer delete(r.visiting, group)

	var users []string
	for _, member := range splitList(def.value) {
		switch {
		case strings.HasPrefix(member, "@"):
			nested, err := r.users(member[1:], def.line)
			if err != nil {
				return nil, err
			}
			users = append(users, nested...)
		case strings.HasPrefix(member, "&"):
			user, ok := r.aliases[member[1:]]
			if !ok {
				return nil, fmt.Errorf("line %d: %w: %s", def.line, ErrUnknownAlias, member)
			}
			users = append(users, user)
		default:
			users = append(users, member)
		}
	}
	r.resolved[group] = users
	return users, nil
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

func splitSectionName(name string) (repository, path string, ok bool) {
	if strings.HasPrefix(name, "/") {
		return "", name, true
	}
	idx := strings.Index(name, ":/")
	if idx < 1 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}

// parseRulePath splits a section path into classified segments. Empty
// segments are dropped and runs of "**" collapse to one. The canonical
// form is returned for duplicate-section detection.
func parseRulePath(path string) ([]Segment, string, error) {
	var rule []Segment
	var parts []string
	for _, part := range strings.Split(path[1:], "/") {
		if part == "" {
			continue
		}
		seg, err := classifySegment(part)
		if err != nil {
			return nil, "", err
		}
		if seg.Kind == AnyRecursive && len(rule) > 0 && rule[len(rule)-1].Kind == AnyRecursive {
			continue
		}
		rule = append(rule, seg)
		parts = append(parts, part)
	}
	return rule, "/" + strings.Join(parts, "/"), nil
}

func classifySegment(text string) (Segment, error) {
	switch text {
	case "*":
		return Segment{Kind: AnySegment, Pattern: "*"}, nil
	case "**":
		return Segment{Kind: AnyRecursive, Pattern: "**"}, nil
	}
	meta := strings.IndexAny(text, "*?[")
	if meta < 0 {
		return Segment{Kind: Literal, Pattern: text}, nil
	}
	if text[meta] == '*' && meta == len(text)-1 {
		return Segment{Kind: Prefix, Pattern: text[:meta]}, nil
	}
	if text[0] == '*' && strings.IndexAny(text[1:], "*?[") < 0 {
		return Segment{Kind: Suffix, Pattern: reverse(text[1:])}, nil
	}
	matcher, err := glob.Compile(text)
	if err != nil {
		return Segment{}, fmt.Errorf("invalid pattern %q: %v", text, err)
	}
	return Segment{Kind: Fnmatch, Pattern: text, Matcher: matcher}, nil
}

func buildACL(res *resolver, sec rawSection, repository string, rule []Segment, sequence int) (*ACL, error) {
	acl := &ACL{
		Sequence:   sequence,
		Repository: repository,
		Rule:       rule,
		UserAccess: make(map[string]Rights),
	}

	// Group-derived rights union together; a direct user (or alias) entry
	// overrides them.
	direct := make(map[string]Rights)
	viaGroup := make(map[string]Rights)

	for _, e := range sec.entries {
		rights, err := ParseRights(e.value)
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", e.line, err)
		}
		switch {
		case e.key == "*":
			acl.HasAnonAccess = true
			acl.AnonAccess |= rights
			acl.HasAuthnAccess = true
			acl.AuthnAccess |= rights
		case e.key == "$anonymous":
			acl.HasAnonAccess = true
			acl.AnonAccess |= rights
		case e.key == "$authenticated":
			acl.HasAuthnAccess = true
			acl.AuthnAccess |= rights
		case strings.HasPrefix(e.key, "@"):
			users, err := res.users(e.key[1:], e.line)
			if err != nil {
				return nil, err
			}
			for _, user := range users {
				viaGroup[user] |= rights
			}
		case strings.HasPrefix(e.key, "&"):
			user, ok := res.aliases[e.key[1:]]
			if !ok {
				return nil, fmt.Errorf("line %d: %w: %s", e.line, ErrUnknownAlias, e.key)
			}
			direct[user] = rights
		default:
			direct[e.key] = rights
		}
	}

	for user, rights := range viaGroup {
		acl.UserAccess[user] = rights
	}
	for user, rights := range direct {
		acl.UserAccess[user] = rights
	}
	return acl, nil
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
