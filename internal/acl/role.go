package acl

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the caller's privilege level for one pod.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// ParseRole accepts "admin" or "viewer", case-insensitively.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleViewer:
		return RoleViewer, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// roleSet is the set of roles a rule grants. An empty set grants nobody.
type roleSet map[Role]bool

// permits reports whether role is granted. A grant to viewer also covers admin.
func (s roleSet) permits(role Role) bool {
	if s[role] {
		return true
	}
	return role == RoleAdmin && s[RoleViewer]
}

func (s roleSet) String() string {
	if len(s) == 0 {
		return "none"
	}
	names := make([]string, 0, len(s))
	for r := range s {
		names = append(names, string(r))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// parseRoles splits a comma-separated role list.
func parseRoles(values []string) (roleSet, error) {
	set := roleSet{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			r, err := ParseRole(part)
			if err != nil {
				return nil, err
			}
			set[r] = true
		}
	}
	return set, nil
}
