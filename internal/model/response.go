package model

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// HealthResponse is returned by the liveness probe.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is returned by the readiness probe.
type ReadyResponse struct {
	Status   string `json:"status"`
	RBAC     bool   `json:"rbac"`
	ACLRules int    `json:"acl_rules"`
	Version  string `json:"version,omitempty"`
}
