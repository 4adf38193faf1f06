// Package registry turns the raw MBean registry of a Jolokia agent into a
// role-scoped snapshot with canInvoke decorations and deduplicated entries.
package registry

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/jmxgate/jmxgate/internal/acl"
	"github.com/jmxgate/jmxgate/internal/jolokia"
)

// Checker answers ACL questions for the optimizer. *acl.Policy implements it.
type Checker interface {
	CheckOperation(mbean, operation string, args []string, role acl.Role) acl.Decision
	CheckAttribute(mbean, attr string, boolean bool, role acl.Role) acl.Decision
}

// Snapshot is the optimised registry for one role. Domains entries either
// hold their description inline or refer to a Cache key.
type Snapshot struct {
	Cache   map[string]*jolokia.MBeanInfo `json:"cache"`
	Domains map[string]map[string]*Entry  `json:"domains"`
}

// Entry is one MBean of Snapshot.Domains.
type Entry struct {
	Ref  string
	Info *jolokia.MBeanInfo
}

// MarshalJSON encodes a reference as its cache key and inline entries as the
// description object.
func (e *Entry) MarshalJSON() ([]byte, error) {
	if e.Ref != "" {
		return json.Marshal(e.Ref)
	}
	return json.Marshal(e.Info)
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var ref string
	if err := json.Unmarshal(data, &ref); err == nil {
		e.Ref, e.Info = ref, nil
		return nil
	}
	var info jolokia.MBeanInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return err
	}
	e.Ref, e.Info = "", &info
	return nil
}

// Optimizer builds snapshots. It holds no per-role state and is safe for
// concurrent use.
type Optimizer struct {
	policy Checker
	canon  *Canonicalizers
}

// NewOptimizer returns an optimizer deciding canInvoke with policy. A nil
// canon uses the built-in canonicalizers.
func NewOptimizer(policy Checker, canon *Canonicalizers) *Optimizer {
	if canon == nil {
		canon = NewCanonicalizers()
	}
	return &Optimizer{policy: policy, canon: canon}
}

// Optimise decorates every MBean of domains for role and deduplicates
// structurally identical descriptions. domains is not modified.
func (o *Optimizer) Optimise(domains jolokia.Domains, role acl.Role) *Snapshot {
	snap := &Snapshot{
		Cache:   make(map[string]*jolokia.MBeanInfo),
		Domains: make(map[string]map[string]*Entry, len(domains)),
	}

	for _, domain := range sortedKeys(domains) {
		mbeans := domains[domain]
		out := make(map[string]*Entry, len(mbeans))
		for _, props := range sortedKeys(mbeans) {
			info := o.Decorate(domain+":"+props, mbeans[props], role)
			key := o.canon.Key(domain, props)

			cached, ok := snap.Cache[key]
			switch {
			case !ok:
				snap.Cache[key] = info
				out[props] = &Entry{Info: info}
			case reflect.DeepEqual(cached, info):
				out[props] = &Entry{Ref: key}
			default:
				out[props] = &Entry{Info: info}
			}
		}
		snap.Domains[domain] = out
	}
	return snap
}

// Decorate returns a copy of info with canInvoke set on the MBean, its
// attributes and every operation signature, plus the opByString index.
func (o *Optimizer) Decorate(mbean string, info *jolokia.MBeanInfo, role acl.Role) *jolokia.MBeanInfo {
	out := info.DeepCopy()
	if out == nil {
		out = &jolokia.MBeanInfo{}
	}
	invocable := false

	for name, attr := range out.Attr {
		ok := o.policy.CheckAttribute(mbean, name, isBoolean(attr.Type), role).Allowed
		attr.CanInvoke = &ok
		invocable = invocable || ok
	}

	if len(out.Op) > 0 {
		out.OpByString = make(map[string]*jolokia.OpInfo)
		for name, sigs := range out.Op {
			for _, op := range sigs {
				sig := op.Signature(name)
				ok := o.policy.CheckOperation(mbean, sig, nil, role).Allowed
				op.CanInvoke = &ok
				out.OpByString[sig] = op
				invocable = invocable || ok
			}
		}
	}

	out.CanInvoke = &invocable
	return out
}

// Lookup returns the decorated description of objectName, resolving cache
// references. Property order in objectName does not matter.
func (s *Snapshot) Lookup(objectName string) (*jolokia.MBeanInfo, bool) {
	on, err := jolokia.ParseObjectName(objectName)
	if err != nil {
		return nil, false
	}
	mbeans, ok := s.Domains[on.Domain]
	if !ok {
		return nil, false
	}
	entry, ok := mbeans[on.Raw]
	if !ok {
		for props, e := range mbeans {
			candidate := jolokia.ObjectName{Domain: on.Domain, Properties: jolokia.ParseProperties(props)}
			if candidate.SameAs(on) {
				entry, ok = e, true
				break
			}
		}
	}
	if !ok {
		return nil, false
	}
	if entry.Ref != "" {
		info, ok := s.Cache[entry.Ref]
		return info, ok
	}
	return entry.Info, entry.Info != nil
}

// ParseProperties parses an ObjectName property list.
func ParseProperties(properties string) map[string]string {
	return jolokia.ParseProperties(properties)
}

func isBoolean(typ string) bool {
	return typ == "boolean" || typ == "java.lang.Boolean"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
