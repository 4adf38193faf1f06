package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/jmxgate/jmxgate/internal/acl"
	"github.com/jmxgate/jmxgate/internal/intercept"
	"github.com/jmxgate/jmxgate/internal/jolokia"
)

// Assemble restores the original order of a bulk call. Element i is the
// synthesized 403 when decisions[i] denied it, the intercepted response when
// intercepts[i] answered it, and otherwise the next unconsumed forwarded
// response. forwarded must be consumed exactly.
func Assemble(requests []*jolokia.Request, decisions []acl.Decision, intercepts []intercept.Result, forwarded []json.RawMessage) ([]json.RawMessage, error) {
	if len(decisions) != len(requests) || len(intercepts) != len(requests) {
		return nil, fmt.Errorf("assemble: %d requests, %d decisions, %d intercepts", len(requests), len(decisions), len(intercepts))
	}
	out := make([]json.RawMessage, len(requests))
	next := 0
	for i, r := range requests {
		switch {
		case !decisions[i].Allowed:
			out[i] = jolokia.Forbidden(r, decisions[i].Reason).Encode()
		case intercepts[i].Intercepted:
			out[i] = intercepts[i].Response.Encode()
		default:
			if next >= len(forwarded) {
				return nil, fmt.Errorf("assemble: agent returned %d responses, more expected", len(forwarded))
			}
			out[i] = forwarded[next]
			next++
		}
	}
	if next != len(forwarded) {
		return nil, fmt.Errorf("assemble: agent returned %d responses, %d expected", len(forwarded), next)
	}
	return out, nil
}
