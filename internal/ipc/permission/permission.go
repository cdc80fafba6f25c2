// Package permission implements the grant model that gates command dispatch.
//
// A grant is a string of the form "namespace/resource", "namespace/*", or
// "*". Grants are issued to an app from its manifest at registration time and
// are immutable afterwards; this package only answers whether a grant set
// authorizes a concrete permission string.
package permission

import "strings"

// Namespace returns the namespace prefix of a permission string. A string
// without a slash is its own namespace.
func Namespace(permission string) string {
	if i := strings.Index(permission, "/"); i >= 0 {
		return permission[:i]
	}
	return permission
}

// GrantSet is an immutable set of permission grants held by an app.
type GrantSet struct {
	grants map[string]struct{}
}

// NewGrantSet builds a grant set from manifest permission strings.
// Duplicates are collapsed; order is irrelevant.
func NewGrantSet(grants []string) GrantSet {
	set := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		set[g] = struct{}{}
	}
	return GrantSet{grants: set}
}

// Authorizes reports whether the set authorizes the required permission.
// The required string is always concrete ("namespace/resource", never a
// wildcard). An empty required string means the command declares no
// permission and is always authorized.
//
// Match succeeds if the set contains "*", the required string verbatim, or
// "namespace/*" for the required string's namespace. Absence of a grant is a
// routing decision, not an error: this never fails in any other way than
// returning false.
func (s GrantSet) Authorizes(required string) bool {
	if required == "" {
		return true
	}
	if _, ok := s.grants["*"]; ok {
		return true
	}
	if _, ok := s.grants[required]; ok {
		return true
	}
	if _, ok := s.grants[Namespace(required)+"/*"]; ok {
		return true
	}
	return false
}

// Contains reports whether the set holds the exact grant string, wildcard or
// not. Used for diagnostics, not for authorization decisions.
func (s GrantSet) Contains(grant string) bool {
	_, ok := s.grants[grant]
	return ok
}

// Len returns the number of distinct grants in the set.
func (s GrantSet) Len() int {
	return len(s.grants)
}

// Strings returns the grants as a slice. The order is unspecified.
func (s GrantSet) Strings() []string {
	out := make([]string, 0, len(s.grants))
	for g := range s.grants {
		out = append(out, g)
	}
	return out
}
