package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jmxgate/jmxgate/internal/access"
	"github.com/jmxgate/jmxgate/internal/upstream"
)

// Kind classifies gateway failures.
type Kind string

const (
	KindMalformedURL         Kind = "malformed_url"
	KindAuthorizationDenied  Kind = "authorization_denied"
	KindAuthorizationFailure Kind = "authorization_failure"
	KindPodResolutionFailure Kind = "pod_resolution_failure"
	KindUpstreamAgentFailure Kind = "upstream_agent_failure"
	KindRequestParseFailure  Kind = "request_parse_failure"
)

// Error is a failure that aborts a gateway call. Status is the HTTP status
// to answer with.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func malformedURL(path string) *Error {
	return &Error{
		Kind:    KindMalformedURL,
		Status:  http.StatusNotFound,
		Message: "URL not recognized: " + path,
	}
}

func parseFailure(err error) *Error {
	return &Error{
		Kind:    KindRequestParseFailure,
		Status:  http.StatusBadGateway,
		Message: err.Error(),
		Err:     err,
	}
}

// accessFailure maps access resolver errors. Denials keep the review's
// reason verbatim.
func accessFailure(err error) *Error {
	var denied *access.DeniedError
	switch {
	case errors.As(err, &denied):
		return &Error{
			Kind:    KindAuthorizationDenied,
			Status:  http.StatusForbidden,
			Message: "Forbidden",
			Reason:  denied.Error(),
			Err:     err,
		}
	case errors.Is(err, access.ErrPodResolution):
		return &Error{
			Kind:    KindPodResolutionFailure,
			Status:  http.StatusBadGateway,
			Message: "unable to resolve pod address",
			Err:     err,
		}
	default:
		return &Error{
			Kind:    KindAuthorizationFailure,
			Status:  http.StatusBadGateway,
			Message: "authorization review failed",
			Err:     err,
		}
	}
}

// upstreamFailure propagates the agent's status when it answered, 502 otherwise.
func upstreamFailure(err error) *Error {
	e := &Error{
		Kind:    KindUpstreamAgentFailure,
		Status:  http.StatusBadGateway,
		Message: "Jolokia agent request failed",
		Err:     err,
	}
	var se *upstream.StatusError
	if errors.As(err, &se) {
		e.Status = se.Status
	}
	return e
}
