package jolokia

import (
	"encoding/json"
	"net/http"
	"time"
)

// Names of the synthetic security MBeans the gateway answers itself.
const (
	SecurityDomain = "hawtio"

	// RBACSearchPattern is the search a console issues to discover the RBAC MBean.
	RBACSearchPattern = "hawtio:type=security,area=jmx,*"
	// RBACMBean answers canInvoke queries.
	RBACMBean = "hawtio:type=security,area=jmx,name=HawtioOnlineRBAC"
	// RBACRegistryMBean returns the role-decorated registry from list().
	RBACRegistryMBean = "hawtio:type=security,name=RBACRegistry"
	// RBACRegistryPath is the `list` path of RBACRegistryMBean.
	RBACRegistryPath = "hawtio/type=security,name=RBACRegistry"
)

// IsSecurityMBean reports whether name belongs to the gateway's own
// security MBeans.
func IsSecurityMBean(name string) bool {
	on, err := ParseObjectName(name)
	if err != nil {
		return false
	}
	return on.Domain == SecurityDomain && on.Properties["type"] == "security"
}

// Response is the envelope of one Jolokia result.
type Response struct {
	Request   *Request `json:"request,omitempty"`
	Value     any      `json:"value,omitempty"`
	Status    int      `json:"status"`
	Timestamp int64    `json:"timestamp,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorType string   `json:"error_type,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// OK builds a successful response for r.
func OK(r *Request, value any) *Response {
	return &Response{
		Request:   r,
		Value:     value,
		Status:    http.StatusOK,
		Timestamp: time.Now().Unix(),
	}
}

// Forbidden builds the response of a request the ACL denied.
func Forbidden(r *Request, reason string) *Response {
	return &Response{
		Request: r,
		Status:  http.StatusForbidden,
		Reason:  reason,
	}
}

// ListResponse is the subset of a `list` response the gateway reads.
type ListResponse struct {
	Value  Domains `json:"value"`
	Status int     `json:"status"`
	Error  string  `json:"error,omitempty"`
}

// Encode marshals a response, falling back to a bare status object.
func (r *Response) Encode() json.RawMessage {
	b, err := json.Marshal(r)
	if err != nil {
		return json.RawMessage(`{"status":500,"error":"unable to encode response"}`)
	}
	return b
}
