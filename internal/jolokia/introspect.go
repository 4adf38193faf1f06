package jolokia

import (
	"strings"
)

// Introspection identifies the requests the gateway answers on behalf of its
// own security MBeans.
type Introspection int

const (
	// NotIntrospection is any request that must reach the agent.
	NotIntrospection Introspection = iota
	// RBACSearch is a search for RBACSearchPattern.
	RBACSearch
	// CanInvokeSingle is exec canInvoke(java.lang.String) on RBACMBean.
	CanInvokeSingle
	// CanInvokeMap is exec canInvoke(java.util.Map) on RBACMBean.
	CanInvokeMap
	// RegistryInfo is a list of RBACRegistryPath.
	RegistryInfo
	// RegistryList is exec list() on RBACRegistryMBean.
	RegistryList
)

var introspectionNames = map[Introspection]string{
	NotIntrospection: "none",
	RBACSearch:       "rbac_search",
	CanInvokeSingle:  "can_invoke",
	CanInvokeMap:     "can_invoke_map",
	RegistryInfo:     "registry_info",
	RegistryList:     "registry_list",
}

func (i Introspection) String() string {
	if s, ok := introspectionNames[i]; ok {
		return s
	}
	return "unknown"
}

// NeedsRegistry reports whether answering the request requires the agent's
// full MBean registry.
func (i Introspection) NeedsRegistry() bool {
	return i == CanInvokeSingle || i == CanInvokeMap || i == RegistryList
}

// Classify recognises the introspection shapes answered by the gateway.
func Classify(r *Request) Introspection {
	switch r.Type {
	case TypeSearch:
		if strings.TrimSpace(r.MBean) == RBACSearchPattern {
			return RBACSearch
		}
	case TypeList:
		if strings.Trim(r.Path, "/") == RBACRegistryPath {
			return RegistryInfo
		}
	case TypeExec:
		switch {
		case sameMBean(r.MBean, RBACMBean):
			return classifyCanInvoke(r)
		case sameMBean(r.MBean, RBACRegistryMBean):
			if op := strings.ReplaceAll(r.Operation, " ", ""); op == "list()" || op == "list" {
				return RegistryList
			}
		}
	}
	return NotIntrospection
}

func classifyCanInvoke(r *Request) Introspection {
	switch strings.ReplaceAll(r.Operation, " ", "") {
	case "canInvoke(java.lang.String)":
		return CanInvokeSingle
	case "canInvoke(java.util.Map)":
		return CanInvokeMap
	case "canInvoke":
		if len(r.Arguments) != 1 {
			return NotIntrospection
		}
		switch r.Arguments[0].(type) {
		case string:
			return CanInvokeSingle
		case map[string]any:
			return CanInvokeMap
		}
	}
	return NotIntrospection
}

func sameMBean(a, b string) bool {
	if a == b {
		return true
	}
	on, err := ParseObjectName(a)
	if err != nil {
		return false
	}
	other, err := ParseObjectName(b)
	if err != nil {
		return false
	}
	return on.SameAs(other)
}

// SplitOperation splits "name(type1, type2)" into its name and normalised
// parameter list. hasSig is false when no parentheses were given.
func SplitOperation(op string) (name, sig string, hasSig bool) {
	op = strings.TrimSpace(op)
	i := strings.IndexByte(op, '(')
	if i < 0 || !strings.HasSuffix(op, ")") {
		return op, "", false
	}
	params := strings.Split(op[i+1:len(op)-1], ",")
	for j := range params {
		params[j] = strings.TrimSpace(params[j])
	}
	sig = strings.Join(params, ",")
	return strings.TrimSpace(op[:i]), sig, true
}
