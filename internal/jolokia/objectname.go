package jolokia

import (
	"fmt"
	"sort"
	"strings"
)

// ObjectName is a parsed JMX object name.
type ObjectName struct {
	Domain     string
	Properties map[string]string
	// Raw is the property list exactly as written.
	Raw string
}

// ParseObjectName splits "domain:k1=v1,k2=v2" into its domain and properties.
func ParseObjectName(name string) (ObjectName, error) {
	domain, props, ok := strings.Cut(name, ":")
	if !ok || domain == "" {
		return ObjectName{}, fmt.Errorf("invalid object name %q", name)
	}
	return ObjectName{
		Domain:     domain,
		Properties: ParseProperties(props),
		Raw:        props,
	}, nil
}

// String renders the name with its original property order.
func (o ObjectName) String() string {
	return o.Domain + ":" + o.Raw
}

// SameAs reports whether two names denote the same MBean regardless of
// property order.
func (o ObjectName) SameAs(other ObjectName) bool {
	if o.Domain != other.Domain || len(o.Properties) != len(other.Properties) {
		return false
	}
	for k, v := range o.Properties {
		if ov, ok := other.Properties[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// ParseProperties parses an ObjectName property list such as
// `name=PS Old Gen,type=MemoryPool`. Commas inside double-quoted values are
// not separators, and quoted values keep their quotes.
func ParseProperties(list string) map[string]string {
	out := map[string]string{}
	for _, pair := range splitProperties(list) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func splitProperties(list string) []string {
	var (
		parts   []string
		current strings.Builder
		quoted  bool
		escaped bool
	)
	for _, r := range list {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quoted:
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			parts = append(parts, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// FormatProperties renders properties in the given key order; keys missing
// from order follow in lexical order.
func FormatProperties(props map[string]string, order []string) string {
	seen := make(map[string]bool, len(props))
	keys := make([]string, 0, len(props))
	for _, k := range order {
		if _, ok := props[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(props))
	for k := range props {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + props[k]
	}
	return strings.Join(pairs, ",")
}
