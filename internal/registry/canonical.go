package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/jmxgate/jmxgate/internal/jolokia"
)

// ArtemisDomain is the JMX domain of ActiveMQ Artemis brokers.
const ArtemisDomain = "org.apache.activemq.artemis"

// Canonicalizer decides how the properties of one domain's MBeans collapse
// into a cache key.
type Canonicalizer interface {
	// Order lists property keys in canonical order. Keys not listed follow
	// in lexical order.
	Order() []string
	// Structural reports whether the value of key distinguishes MBean kinds
	// rather than instances, and therefore stays in the cache key.
	Structural(key string) bool
}

// KeyOrder is a Canonicalizer defined by a fixed key order and a set of
// structural keys.
type KeyOrder struct {
	Keys           []string
	StructuralKeys []string
}

func (k KeyOrder) Order() []string { return k.Keys }

func (k KeyOrder) Structural(key string) bool {
	for _, s := range k.StructuralKeys {
		if s == key {
			return true
		}
	}
	return false
}

// DefaultCanonicalizer applies to domains without a registered canonicalizer.
var DefaultCanonicalizer Canonicalizer = &KeyOrder{StructuralKeys: []string{"type", "j2eeType"}}

// ArtemisCanonicalizer follows the broker/address/queue hierarchy of Artemis
// object names.
var ArtemisCanonicalizer Canonicalizer = &KeyOrder{
	Keys:           []string{"broker", "component", "name", "address", "subcomponent", "routing-type", "queue"},
	StructuralKeys: []string{"component", "subcomponent"},
}

// Canonicalizers maps JMX domains to their Canonicalizer.
type Canonicalizers struct {
	mu     sync.RWMutex
	byName map[string]Canonicalizer
}

// NewCanonicalizers returns a registry holding the built-in canonicalizers.
func NewCanonicalizers() *Canonicalizers {
	c := &Canonicalizers{byName: make(map[string]Canonicalizer)}
	c.Register(ArtemisDomain, ArtemisCanonicalizer)
	return c
}

// Register sets the canonicalizer for domain, replacing any existing one.
func (c *Canonicalizers) Register(domain string, canon Canonicalizer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName[domain] = canon
}

// Get returns the canonicalizer for domain, or DefaultCanonicalizer.
func (c *Canonicalizers) Get(domain string) Canonicalizer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if canon, ok := c.byName[domain]; ok {
		return canon
	}
	return DefaultCanonicalizer
}

// Domains returns the domains with a registered canonicalizer.
func (c *Canonicalizers) Domains() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.byName))
	for d := range c.byName {
		names = append(names, d)
	}
	sort.Strings(names)
	return names
}

// Key returns the cache key of an MBean: its domain and canonically ordered
// properties, with every non-structural value replaced by "*".
func (c *Canonicalizers) Key(domain, properties string) string {
	canon := c.Get(domain)
	props := jolokia.ParseProperties(properties)
	generic := make(map[string]string, len(props))
	for k, v := range props {
		if canon.Structural(k) {
			generic[k] = v
			continue
		}
		generic[k] = "*"
	}
	var b strings.Builder
	b.WriteString(domain)
	b.WriteByte(':')
	b.WriteString(jolokia.FormatProperties(generic, canon.Order()))
	return b.String()
}
