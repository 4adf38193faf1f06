package acl

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/jmxgate/jmxgate/internal/jolokia"
)

// Decision is the verdict for one request.
type Decision struct {
	Allowed bool
	Reason  string
}

var allowed = Decision{Allowed: true}

// Check evaluates one non-bulk request for role.
func (p *Policy) Check(r *jolokia.Request, role Role) Decision {
	switch r.Type {
	case jolokia.TypeSearch, jolokia.TypeList, jolokia.TypeVersion:
		return allowed
	case jolokia.TypeNotification:
		if r.MBean == "" {
			return allowed
		}
	}
	if jolokia.IsSecurityMBean(r.MBean) {
		return allowed
	}

	switch r.Type {
	case jolokia.TypeRead:
		if len(r.Attribute) == 0 {
			return p.CheckOperation(r.MBean, "get", nil, role)
		}
		for _, attr := range r.Attribute {
			if d := p.CheckAttribute(r.MBean, attr, false, role); !d.Allowed {
				return d
			}
		}
		return allowed
	case jolokia.TypeWrite:
		for _, attr := range r.Attribute {
			if d := p.CheckOperation(r.MBean, "set"+capitalize(attr), nil, role); !d.Allowed {
				return d
			}
		}
		return allowed
	case jolokia.TypeExec:
		return p.CheckOperation(r.MBean, r.Operation, r.StringArguments(), role)
	case jolokia.TypeNotification:
		return p.CheckOperation(r.MBean, "addNotificationListener", nil, role)
	}
	return Decision{Reason: fmt.Sprintf("Role '%s' denied: unsupported request type '%s'", role, r.Type)}
}

// CheckAttribute decides read access to attr. Boolean attributes may also be
// granted through an is<Attr> rule.
func (p *Policy) CheckAttribute(mbean, attr string, boolean bool, role Role) Decision {
	d := p.CheckOperation(mbean, "get"+capitalize(attr), nil, role)
	if d.Allowed || !boolean {
		return d
	}
	if alt := p.CheckOperation(mbean, "is"+capitalize(attr), nil, role); alt.Allowed {
		return alt
	}
	return d
}

// CheckOperation decides whether role may invoke operation on mbean.
// operation is a bare name or a "name(type,...)" signature; args are only
// consulted by argument rules.
func (p *Policy) CheckOperation(mbean, operation string, args []string, role Role) Decision {
	name, sig, hasSig := jolokia.SplitOperation(operation)
	t := target{name: name, sig: sig, hasSig: hasSig, args: args}

	for _, sel := range p.selectorsFor(mbean) {
		deciding := sel.resolve(t)
		if len(deciding) == 0 {
			continue
		}
		for _, rl := range deciding {
			if !rl.roles.permits(role) {
				return denied(role, mbean, operation, rl.roles)
			}
		}
		return allowed
	}
	return denied(role, mbean, operation, nil)
}

// resolve returns the rules of the most specific tier matching t. Among
// prefix rules only the longest prefixes count.
func (s *selector) resolve(t target) []*rule {
	var (
		best     = tierAny + 1
		bestLen  = -1
		deciding []*rule
	)
	for _, rl := range s.rules {
		if !rl.matches(t) {
			continue
		}
		switch {
		case rl.tier < best:
			best, deciding = rl.tier, []*rule{rl}
			bestLen = len(rl.prefix)
		case rl.tier == best && rl.tier == tierPrefix:
			switch {
			case len(rl.prefix) > bestLen:
				deciding, bestLen = []*rule{rl}, len(rl.prefix)
			case len(rl.prefix) == bestLen:
				deciding = append(deciding, rl)
			}
		case rl.tier == best:
			deciding = append(deciding, rl)
		}
	}
	return deciding
}

func denied(role Role, mbean, operation string, roles roleSet) Decision {
	return Decision{
		Reason: fmt.Sprintf("Role '%s' denied by '%s[%s]: %s'", role, mbean, operation, roles),
	}
}

// IsMBeanListRequired reports whether answering r requires the agent's
// registry.
func IsMBeanListRequired(r *jolokia.Request) bool {
	return jolokia.Classify(r).NeedsRegistry()
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
