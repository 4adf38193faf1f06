// Package acl evaluates Jolokia requests against a static role-based
// access-control document.
//
// The document maps MBean selectors to operation rules:
//
//	default:
//	  get*: viewer
//	  "*": admin
//	java.lang:type=Memory:
//	  gc: admin
//	/org\.apache\.karaf:type=bundle,.*/:
//	  uninstall(java.lang.String): []
//	  'update(java.lang.String)["0"]': []
//	  update: admin
//
// A selector is "default", an exact ObjectName or a /regex/ over the full
// ObjectName. Rules are resolved most-specific first and anything no rule
// matches is denied.
package acl

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jmxgate/jmxgate/internal/jolokia"
)

// ErrInvalidPolicy is wrapped by every load failure.
var ErrInvalidPolicy = errors.New("invalid ACL document")

const (
	defaultSelector = "default"
	nullTag         = "!!null"
)

// Policy is an immutable, loaded ACL document. It is safe for concurrent use.
type Policy struct {
	exact []*selector
	regex []*selector
	def   *selector
	rules int
}

type selector struct {
	pattern string
	name    jolokia.ObjectName
	re      *regexp.Regexp
	rules   []*rule
}

// Load reads and parses the ACL document at path.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse builds a policy from YAML. Selector order is preserved so regex
// selectors are tried in document order.
func Parse(data []byte) (*Policy, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	p := &Policy{}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return p, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: top level must be a mapping of selectors", ErrInvalidPolicy, root.Line)
	}

	seen := map[string]bool{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, body := root.Content[i], root.Content[i+1]
		pattern := strings.TrimSpace(keyNode.Value)
		if seen[pattern] {
			return nil, fmt.Errorf("%w: line %d: duplicate selector %q", ErrInvalidPolicy, keyNode.Line, pattern)
		}
		seen[pattern] = true

		sel, err := parseSelector(pattern, body)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidPolicy, keyNode.Line, err)
		}
		p.rules += len(sel.rules)

		switch {
		case pattern == defaultSelector:
			p.def = sel
		case sel.re != nil:
			p.regex = append(p.regex, sel)
		default:
			p.exact = append(p.exact, sel)
		}
	}
	return p, nil
}

func parseSelector(pattern string, body *yaml.Node) (*selector, error) {
	sel := &selector{pattern: pattern}
	switch {
	case pattern == defaultSelector:
	case len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/"):
		re, err := regexp.Compile("^(?:" + pattern[1:len(pattern)-1] + ")$")
		if err != nil {
			return nil, fmt.Errorf("selector %s: %v", pattern, err)
		}
		sel.re = re
	default:
		on, err := jolokia.ParseObjectName(pattern)
		if err != nil {
			return nil, fmt.Errorf("selector: %v", err)
		}
		sel.name = on
	}

	if body.Kind == yaml.ScalarNode && body.ShortTag() == nullTag {
		return sel, nil
	}
	if body.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("selector %q: rules must be a mapping", pattern)
	}
	for i := 0; i+1 < len(body.Content); i += 2 {
		k, v := body.Content[i], body.Content[i+1]
		r, err := parseKey(k.Value)
		if err != nil {
			return nil, err
		}
		values, err := roleValues(v)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %v", k.Value, err)
		}
		if r.roles, err = parseRoles(values); err != nil {
			return nil, fmt.Errorf("rule %q: %v", k.Value, err)
		}
		sel.rules = append(sel.rules, r)
	}
	return sel, nil
}

// roleValues accepts a scalar, a sequence of scalars or null.
func roleValues(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.ShortTag() == nullTag {
			return nil, nil
		}
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: roles must be strings", c.Line)
			}
			out = append(out, c.Value)
		}
		return out, nil
	}
	return nil, fmt.Errorf("line %d: roles must be a string or a list", n.Line)
}

// Rules returns the number of rules in the document.
func (p *Policy) Rules() int { return p.rules }

// selectorsFor returns the selectors that may apply to mbean, in resolution order.
func (p *Policy) selectorsFor(mbean string) []*selector {
	var out []*selector
	if on, err := jolokia.ParseObjectName(mbean); err == nil {
		for _, s := range p.exact {
			if s.name.SameAs(on) {
				out = append(out, s)
			}
		}
	}
	for _, s := range p.regex {
		if s.re.MatchString(mbean) {
			out = append(out, s)
		}
	}
	if p.def != nil {
		out = append(out, p.def)
	}
	return out
}
