package jolokia

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Domains is the value of a Jolokia `list` response:
// domain -> property list -> MBean description.
type Domains map[string]map[string]*MBeanInfo

// MBeanInfo describes one MBean. CanInvoke and OpByString are only set on
// descriptions produced by the registry optimizer.
type MBeanInfo struct {
	Desc       string                `json:"desc,omitempty"`
	Class      string                `json:"class,omitempty"`
	Attr       map[string]*AttrInfo  `json:"attr,omitempty"`
	Op         Operations            `json:"op,omitempty"`
	Notif      map[string]*NotifInfo `json:"notif,omitempty"`
	CanInvoke  *bool                 `json:"canInvoke,omitempty"`
	OpByString map[string]*OpInfo    `json:"opByString,omitempty"`
}

// AttrInfo describes an MBean attribute.
type AttrInfo struct {
	Type      string `json:"type,omitempty"`
	Desc      string `json:"desc,omitempty"`
	RW        bool   `json:"rw"`
	CanInvoke *bool  `json:"canInvoke,omitempty"`
}

// OpInfo describes one signature of an MBean operation.
type OpInfo struct {
	Args      []ArgInfo `json:"args"`
	Ret       string    `json:"ret,omitempty"`
	Desc      string    `json:"desc,omitempty"`
	CanInvoke *bool     `json:"canInvoke,omitempty"`
}

// ArgInfo describes an operation parameter.
type ArgInfo struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type"`
	Desc string `json:"desc,omitempty"`
}

// NotifInfo describes a notification an MBean may emit.
type NotifInfo struct {
	Name  string   `json:"name,omitempty"`
	Desc  string   `json:"desc,omitempty"`
	Types []string `json:"types,omitempty"`
}

// Signature returns the operation signature "name(type1,type2)".
func (o *OpInfo) Signature(name string) string {
	types := make([]string, len(o.Args))
	for i, a := range o.Args {
		types[i] = a.Type
	}
	return name + "(" + strings.Join(types, ",") + ")"
}

// Operations maps an operation name to its signatures. On the wire a
// non-overloaded operation is an object and an overloaded one an array.
type Operations map[string][]*OpInfo

func (o *Operations) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ops := make(Operations, len(raw))
	for name, v := range raw {
		v = bytes.TrimSpace(v)
		if len(v) > 0 && v[0] == '[' {
			var many []*OpInfo
			if err := json.Unmarshal(v, &many); err != nil {
				return err
			}
			ops[name] = many
			continue
		}
		var one OpInfo
		if err := json.Unmarshal(v, &one); err != nil {
			return err
		}
		ops[name] = []*OpInfo{&one}
	}
	*o = ops
	return nil
}

func (o Operations) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(o))
	for name, sigs := range o {
		if len(sigs) == 1 {
			out[name] = sigs[0]
			continue
		}
		out[name] = sigs
	}
	return json.Marshal(out)
}

// DeepCopy returns an independent copy of the description.
func (m *MBeanInfo) DeepCopy() *MBeanInfo {
	if m == nil {
		return nil
	}
	out := &MBeanInfo{Desc: m.Desc, Class: m.Class, CanInvoke: copyBool(m.CanInvoke)}
	if m.Attr != nil {
		out.Attr = make(map[string]*AttrInfo, len(m.Attr))
		for k, a := range m.Attr {
			c := *a
			c.CanInvoke = copyBool(a.CanInvoke)
			out.Attr[k] = &c
		}
	}
	if m.Op != nil {
		out.Op = make(Operations, len(m.Op))
		for k, sigs := range m.Op {
			cs := make([]*OpInfo, len(sigs))
			for i, s := range sigs {
				c := *s
				c.Args = append([]ArgInfo(nil), s.Args...)
				c.CanInvoke = copyBool(s.CanInvoke)
				cs[i] = &c
			}
			out.Op[k] = cs
		}
	}
	if m.Notif != nil {
		out.Notif = make(map[string]*NotifInfo, len(m.Notif))
		for k, n := range m.Notif {
			c := *n
			c.Types = append([]string(nil), n.Types...)
			out.Notif[k] = &c
		}
	}
	return out
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
