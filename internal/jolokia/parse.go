package jolokia

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnexpectedRequest is wrapped by every normalizer failure.
var ErrUnexpectedRequest = errors.New("unexpected Jolokia request")

// ParseBody decodes a POST body holding either one request object or an
// array of request objects.
func ParseBody(body []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Payload{}, fmt.Errorf("%w: empty body", ErrUnexpectedRequest)
	}

	if trimmed[0] == '[' {
		var rs []*Request
		if err := json.Unmarshal(trimmed, &rs); err != nil {
			return Payload{}, fmt.Errorf("%w: %v: %s", ErrUnexpectedRequest, err, trimmed)
		}
		if len(rs) == 0 {
			return Payload{}, fmt.Errorf("%w: empty bulk request", ErrUnexpectedRequest)
		}
		for i, r := range rs {
			if r == nil {
				return Payload{}, fmt.Errorf("%w: bulk element %d is null: %s", ErrUnexpectedRequest, i, trimmed)
			}
			if err := r.Validate(); err != nil {
				return Payload{}, fmt.Errorf("%w: bulk element %d: %v: %s", ErrUnexpectedRequest, i, err, trimmed)
			}
		}
		return Bulk(rs), nil
	}

	var r Request
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return Payload{}, fmt.Errorf("%w: %v: %s", ErrUnexpectedRequest, err, trimmed)
	}
	if err := r.Validate(); err != nil {
		return Payload{}, fmt.Errorf("%w: %v: %s", ErrUnexpectedRequest, err, trimmed)
	}
	return Single(&r), nil
}

// ParsePath decodes the path-encoded form of a GET request. Everything up to
// and including the first "jolokia" segment is skipped; the next segment is
// the request type and the rest are its positional arguments.
//
// Jolokia's escaping of "/" inside segments ("!/") is not interpreted.
func ParsePath(path string) (*Request, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	start := -1
	for i, s := range segments {
		if s == "jolokia" {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, unexpectedGET(path)
	}

	args := segments[start:]
	if len(args) > 0 && args[len(args)-1] == "" {
		args = args[:len(args)-1]
	}
	if len(args) == 0 {
		return &Request{Type: TypeVersion}, nil
	}

	typ, args := Type(args[0]), args[1:]
	r := &Request{Type: typ}
	switch typ {
	case TypeRead:
		if len(args) < 1 {
			return nil, unexpectedGET(path)
		}
		r.MBean = args[0]
		if len(args) > 1 && args[1] != "" {
			r.Attribute = StringList{args[1]}
		}
	case TypeWrite:
		if len(args) < 3 {
			return nil, unexpectedGET(path)
		}
		r.MBean = args[0]
		r.Attribute = StringList{args[1]}
		r.Value = args[2]
	case TypeExec:
		if len(args) < 2 {
			return nil, unexpectedGET(path)
		}
		r.MBean = args[0]
		r.Operation = args[1]
		if len(args) > 2 {
			r.Arguments = make([]any, 0, len(args)-2)
			for _, a := range args[2:] {
				r.Arguments = append(r.Arguments, a)
			}
		}
	case TypeSearch:
		if len(args) < 1 {
			return nil, unexpectedGET(path)
		}
		r.MBean = args[0]
	case TypeList:
		r.Path = strings.Join(args, "/")
	case TypeVersion:
	default:
		return nil, unexpectedGET(path)
	}
	return r, nil
}

// Parse normalizes an inbound HTTP call into a payload. GET requests are
// decoded from the path; any other method from the body.
func Parse(method, path string, body []byte) (Payload, error) {
	if method == http.MethodGet {
		r, err := ParsePath(path)
		if err != nil {
			return Payload{}, err
		}
		return Single(r), nil
	}
	return ParseBody(body)
}

func unexpectedGET(path string) error {
	return fmt.Errorf("%w: Unexpected Jolokia GET request: %s", ErrUnexpectedRequest, path)
}

// BasePath returns the agent endpoint of a request path: everything up to and
// including the first "jolokia" segment. Paths without one are returned
// unchanged.
func BasePath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, s := range segments {
		if s == "jolokia" {
			return strings.Join(segments[:i+1], "/")
		}
	}
	return path
}
