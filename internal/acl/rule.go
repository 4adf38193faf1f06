package acl

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmxgate/jmxgate/internal/jolokia"
)

// tier orders rule kinds from most to least specific.
type tier int

const (
	tierArgs tier = iota
	tierSignature
	tierName
	tierPrefix
	tierAny
)

// rule is one `key: roles` entry of a selector.
type rule struct {
	key    string
	tier   tier
	name   string
	sig    string
	hasSig bool
	args   []argMatcher
	prefix string
	roles  roleSet
}

type argMatcher struct {
	literal string
	re      *regexp.Regexp
}

func (m argMatcher) matches(v string) bool {
	if m.re != nil {
		return m.re.MatchString(v)
	}
	return m.literal == v
}

// target is the operation a request is checked as.
type target struct {
	name   string
	sig    string
	hasSig bool
	args   []string
}

// parseKey parses the rule key grammar:
//
//	*                      any operation
//	prefix*                operations starting with prefix
//	name                   every signature of name
//	name(type,type)        one signature
//	name[(sig)]["a","/re/"] invocations with matching arguments
func parseKey(key string) (*rule, error) {
	key = strings.TrimSpace(key)
	r := &rule{key: key}

	if key == "*" {
		r.tier = tierAny
		return r, nil
	}

	hasArgs := false
	if i := strings.IndexByte(key, '['); i >= 0 {
		if !strings.HasSuffix(key, "]") {
			return nil, fmt.Errorf("rule %q: unterminated argument list", key)
		}
		var raw []any
		if err := json.Unmarshal([]byte(key[i:]), &raw); err != nil {
			return nil, fmt.Errorf("rule %q: argument list: %w", key, err)
		}
		args, err := argMatchers(raw)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", key, err)
		}
		hasArgs = true
		r.args = args
		key = strings.TrimSpace(key[:i])
	}

	switch {
	case strings.ContainsAny(key, "()"):
		name, sig, ok := jolokia.SplitOperation(key)
		if !ok {
			return nil, fmt.Errorf("rule %q: malformed signature", r.key)
		}
		key, r.sig, r.hasSig = name, sig, true
		r.tier = tierSignature
	case !hasArgs && strings.HasSuffix(key, "*"):
		r.prefix = strings.TrimSuffix(key, "*")
		key = r.prefix
		r.tier = tierPrefix
	default:
		r.tier = tierName
	}
	if hasArgs {
		r.tier = tierArgs
	}

	if key == "" && r.tier != tierPrefix {
		return nil, fmt.Errorf("rule %q: missing operation name", r.key)
	}
	if strings.ContainsAny(key, "*()[] ") {
		return nil, fmt.Errorf("rule %q: invalid operation name", r.key)
	}
	r.name = key
	return r, nil
}

func argMatchers(raw []any) ([]argMatcher, error) {
	out := make([]argMatcher, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			out[i] = argMatcher{literal: string(b)}
			continue
		}
		if len(s) >= 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
			re, err := regexp.Compile("^(?:" + s[1:len(s)-1] + ")$")
			if err != nil {
				return nil, fmt.Errorf("argument pattern %s: %w", s, err)
			}
			out[i] = argMatcher{re: re}
			continue
		}
		out[i] = argMatcher{literal: s}
	}
	return out, nil
}

// matches reports whether the rule applies to t.
func (r *rule) matches(t target) bool {
	switch r.tier {
	case tierAny:
		return true
	case tierPrefix:
		return strings.HasPrefix(t.name, r.prefix)
	case tierName:
		return t.name == r.name
	case tierSignature:
		return t.name == r.name && (!t.hasSig || t.sig == r.sig)
	case tierArgs:
		if t.name != r.name || len(t.args) != len(r.args) {
			return false
		}
		if r.hasSig && t.hasSig && t.sig != r.sig {
			return false
		}
		for i, m := range r.args {
			if !m.matches(t.args[i]) {
				return false
			}
		}
		return true
	}
	return false
}
