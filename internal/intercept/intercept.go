// Package intercept answers the requests addressed to the gateway's own
// security MBeans without contacting the agent.
package intercept

import (
	"strings"

	"github.com/jmxgate/jmxgate/internal/acl"
	"github.com/jmxgate/jmxgate/internal/jolokia"
	"github.com/jmxgate/jmxgate/internal/registry"
)

// Result is the verdict for one request. Request is always the request that
// was examined; Response is set only when Intercepted is true.
type Result struct {
	Intercepted bool
	Kind        jolokia.Introspection
	Request     *jolokia.Request
	Response    *jolokia.Response
}

// Invocation is one entry of a canInvoke(java.util.Map) answer.
type Invocation struct {
	CanInvoke  bool   `json:"CanInvoke"`
	Method     string `json:"Method"`
	ObjectName string `json:"ObjectName"`
}

// Interceptor recognises introspection requests. It is stateless.
type Interceptor struct {
	policy registry.Checker
}

// New returns an interceptor that falls back to policy for names a snapshot
// does not describe.
func New(policy registry.Checker) *Interceptor {
	return &Interceptor{policy: policy}
}

// Intercept answers r when it is an introspection request. snap must be the
// snapshot built for role whenever r's kind needs the registry; a nil
// snapshot is treated as an empty registry.
func (i *Interceptor) Intercept(r *jolokia.Request, role acl.Role, snap *registry.Snapshot) Result {
	kind := jolokia.Classify(r)
	res := Result{Kind: kind, Request: r}
	if kind == jolokia.NotIntrospection {
		return res
	}
	if snap == nil {
		snap = &registry.Snapshot{}
	}

	var value any
	switch kind {
	case jolokia.RBACSearch:
		value = []string{jolokia.RBACMBean}
	case jolokia.CanInvokeSingle:
		value = canInvokeMBean(snap, firstString(r.Arguments))
	case jolokia.CanInvokeMap:
		value = i.canInvokeMap(snap, r, role)
	case jolokia.RegistryInfo:
		value = registryInfo()
	case jolokia.RegistryList:
		value = snap
	}

	res.Intercepted = true
	res.Response = jolokia.OK(r, value)
	return res
}

func canInvokeMBean(snap *registry.Snapshot, objectName string) bool {
	info, ok := snap.Lookup(objectName)
	return ok && info.CanInvoke != nil && *info.CanInvoke
}

// canInvokeMap answers {mbean: [name, ...]} with {mbean: {name: Invocation}}.
func (i *Interceptor) canInvokeMap(snap *registry.Snapshot, r *jolokia.Request, role acl.Role) map[string]map[string]Invocation {
	out := map[string]map[string]Invocation{}
	if len(r.Arguments) == 0 {
		return out
	}
	query, _ := r.Arguments[0].(map[string]any)
	for mbean, rawNames := range query {
		answers := map[string]Invocation{}
		for _, name := range stringList(rawNames) {
			answers[name] = Invocation{
				CanInvoke:  i.canInvokeName(snap, mbean, name, role),
				Method:     name,
				ObjectName: mbean,
			}
		}
		out[mbean] = answers
	}
	return out
}

// canInvokeName resolves name as a signature, then an operation name (any
// overload), then an attribute, and finally asks the policy directly.
func (i *Interceptor) canInvokeName(snap *registry.Snapshot, mbean, name string, role acl.Role) bool {
	if info, ok := snap.Lookup(mbean); ok {
		if op, ok := info.OpByString[normaliseSignature(name)]; ok {
			return isTrue(op.CanInvoke)
		}
		if sigs, ok := info.Op[name]; ok {
			for _, op := range sigs {
				if isTrue(op.CanInvoke) {
					return true
				}
			}
			return false
		}
		if attr, ok := info.Attr[name]; ok {
			return isTrue(attr.CanInvoke)
		}
	}
	return i.policy.CheckOperation(mbean, name, nil, role).Allowed
}

func registryInfo() map[string]any {
	return map[string]any{
		"class": "io.hawt.jmx.RBACRegistry",
		"desc":  "RBAC registry of the JMX gateway",
		"op": map[string]any{
			"list": map[string]any{
				"args": []any{},
				"ret":  "java.util.Map",
				"desc": "Lists MBeans with canInvoke decorations for the caller's role",
			},
		},
	}
}

func normaliseSignature(s string) string {
	name, sig, ok := jolokia.SplitOperation(s)
	if !ok {
		return s
	}
	return name + "(" + sig + ")"
}

func firstString(args []any) string {
	if len(args) == 0 {
		return ""
	}
	s, _ := args[0].(string)
	return strings.TrimSpace(s)
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func isTrue(b *bool) bool { return b != nil && *b }
