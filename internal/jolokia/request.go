// Package jolokia models the Jolokia JMX-over-HTTP protocol as seen by the
// gateway: requests (single or bulk), the GET path and POST body encodings,
// ObjectName property lists and the MBean registry returned by `list`.
package jolokia

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Type is the discriminator of a Jolokia request.
type Type string

const (
	TypeRead         Type = "read"
	TypeWrite        Type = "write"
	TypeExec         Type = "exec"
	TypeSearch       Type = "search"
	TypeList         Type = "list"
	TypeVersion      Type = "version"
	TypeNotification Type = "notification"
)

// Valid reports whether t is one of the request types the gateway understands.
func (t Type) Valid() bool {
	switch t {
	case TypeRead, TypeWrite, TypeExec, TypeSearch, TypeList, TypeVersion, TypeNotification:
		return true
	}
	return false
}

// Request is a single Jolokia operation.
//
// The verbatim JSON the request was decoded from is retained so the gateway
// can forward it and echo it back without re-encoding.
type Request struct {
	Type      Type            `json:"type"`
	MBean     string          `json:"mbean,omitempty"`
	Attribute StringList      `json:"attribute,omitempty"`
	Value     any             `json:"value,omitempty"`
	Operation string          `json:"operation,omitempty"`
	Arguments []any           `json:"arguments,omitempty"`
	Path      string          `json:"path,omitempty"`
	Config    map[string]any  `json:"config,omitempty"`
	Command   string          `json:"command,omitempty"`
	raw       json.RawMessage
}

type requestAlias Request

// UnmarshalJSON decodes a request and keeps a copy of its raw bytes.
func (r *Request) UnmarshalJSON(data []byte) error {
	var a requestAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Request(a)
	r.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the verbatim JSON when the request was decoded from
// the wire, or a fresh encoding otherwise.
func (r Request) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	return json.Marshal(requestAlias(r))
}

// Validate checks the fields required by the request type.
func (r *Request) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("unknown request type %q", r.Type)
	}
	switch r.Type {
	case TypeRead, TypeSearch:
		if r.MBean == "" {
			return fmt.Errorf("%s request without mbean", r.Type)
		}
	case TypeWrite:
		if r.MBean == "" || len(r.Attribute) == 0 {
			return fmt.Errorf("write request requires mbean and attribute")
		}
	case TypeExec:
		if r.MBean == "" || r.Operation == "" {
			return fmt.Errorf("exec request requires mbean and operation")
		}
	}
	return nil
}

// StringArguments returns the exec arguments rendered as strings, the form
// the ACL argument rules compare against.
func (r *Request) StringArguments() []string {
	out := make([]string, len(r.Arguments))
	for i, a := range r.Arguments {
		switch v := a.(type) {
		case string:
			out[i] = v
		case nil:
			out[i] = ""
		default:
			b, err := json.Marshal(v)
			if err != nil {
				out[i] = fmt.Sprint(v)
				continue
			}
			out[i] = string(b)
		}
	}
	return out
}

// StringList is a JSON value that may be either a single string or an array
// of strings, as used by the Jolokia `attribute` field.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var many []string
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*s = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*s = StringList{one}
	return nil
}

func (s StringList) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}

// Payload is either one request or an ordered bulk of requests.
type Payload struct {
	requests []*Request
	bulk     bool
}

// Single wraps one request.
func Single(r *Request) Payload {
	return Payload{requests: []*Request{r}}
}

// Bulk wraps an ordered list of requests.
func Bulk(rs []*Request) Payload {
	return Payload{requests: rs, bulk: true}
}

// IsBulk reports whether the payload was sent as a JSON array.
func (p Payload) IsBulk() bool { return p.bulk }

// Requests returns the requests in their original order.
func (p Payload) Requests() []*Request { return p.requests }

// MarshalJSON encodes the payload in its original shape.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.bulk {
		return json.Marshal(p.requests)
	}
	if len(p.requests) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(p.requests[0])
}
