// Package gateway runs the per-call pipeline: it resolves the caller's role on
// the target pod, applies the ACL, answers introspection requests locally and
// forwards the remainder to the pod's Jolokia agent.
//
// The pipeline is host-agnostic. Handle takes a Call and returns the agent
// response or an *Error; the net/http adapter lives in http.go.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/jmxgate/jmxgate/internal/access"
	"github.com/jmxgate/jmxgate/internal/acl"
	"github.com/jmxgate/jmxgate/internal/intercept"
	"github.com/jmxgate/jmxgate/internal/jolokia"
	"github.com/jmxgate/jmxgate/internal/metrics"
	"github.com/jmxgate/jmxgate/internal/registry"
	"github.com/jmxgate/jmxgate/internal/upstream"
)

// PolicyConfig is fixed at startup. With RBAC false every call that passes
// the update check is forwarded verbatim.
type PolicyConfig struct {
	RBAC   bool
	Policy *acl.Policy
}

// Authorizer answers access questions with the caller's identity.
// *access.Resolver implements it.
type Authorizer interface {
	Resolve(ctx context.Context, token, namespace, pod string) (access.Grant, error)
	Authorize(ctx context.Context, token, verb, namespace, pod string) (access.Grant, error)
}

// Agent talks to Jolokia agents. *upstream.Forwarder implements it.
type Agent interface {
	Forward(ctx context.Context, target upstream.Target, method string, header http.Header, body []byte) (*upstream.SimpleResponse, error)
	FetchRegistry(ctx context.Context, target upstream.Target, header http.Header) (jolokia.Domains, error)
}

// Call is one inbound gateway request.
type Call struct {
	Method string
	// Path is the escaped request path, starting at the gateway mount.
	Path     string
	RawQuery string
	Token    string
	Header   http.Header
	Body     []byte
}

// Route is the pod address carried in a gateway path.
type Route struct {
	Namespace string
	Proto     string
	Pod       string
	Port      string
	// Path is the escaped agent path, without a leading slash.
	Path string
}

var routePattern = regexp.MustCompile(`^/management/namespaces/([^/]+)/pods/(https?):([^/:]+):(\d+)/(.*)$`)

// ParseRoute splits a gateway path into its pod address and agent path.
func ParseRoute(path string) (Route, error) {
	m := routePattern.FindStringSubmatch(path)
	if m == nil {
		return Route{}, malformedURL(path)
	}
	return Route{Namespace: m[1], Proto: m[2], Pod: m[3], Port: m[4], Path: m[5]}, nil
}

// Gateway is safe for concurrent use; it holds no per-call state.
type Gateway struct {
	access      Authorizer
	agent       Agent
	cfg         PolicyConfig
	optimizer   *registry.Optimizer
	interceptor *intercept.Interceptor
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithCanonicalizers sets the registry canonicalizers used for RBAC
// snapshots.
func WithCanonicalizers(c *registry.Canonicalizers) Option {
	return func(g *Gateway) {
		if g.cfg.Policy != nil {
			g.optimizer = registry.NewOptimizer(g.cfg.Policy, c)
		}
	}
}

// New builds a gateway. A policy is required when RBAC is enabled.
func New(authz Authorizer, agent Agent, cfg PolicyConfig, m *metrics.Metrics, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if cfg.RBAC && cfg.Policy == nil {
		return nil, errors.New("gateway: RBAC enabled without an ACL policy")
	}
	g := &Gateway{
		access:  authz,
		agent:   agent,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
	if cfg.Policy != nil {
		g.optimizer = registry.NewOptimizer(cfg.Policy, nil)
		g.interceptor = intercept.New(cfg.Policy)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// RBAC reports whether per-operation access control is active.
func (g *Gateway) RBAC() bool { return g.cfg.RBAC }

// Handle runs one call through the pipeline.
func (g *Gateway) Handle(ctx context.Context, call *Call) (*upstream.SimpleResponse, error) {
	mode := "passthrough"
	if g.cfg.RBAC {
		mode = "rbac"
	}
	resp, err := g.handle(ctx, call)
	outcome := "ok"
	var ge *Error
	if errors.As(err, &ge) {
		outcome = string(ge.Kind)
	} else if err != nil {
		outcome = "error"
	}
	if g.metrics != nil {
		g.metrics.GatewayRequests.WithLabelValues(mode, outcome).Inc()
	}
	return resp, err
}

func (g *Gateway) handle(ctx context.Context, call *Call) (*upstream.SimpleResponse, error) {
	route, err := ParseRoute(call.Path)
	if err != nil {
		return nil, err
	}
	if !g.cfg.RBAC {
		return g.passthrough(ctx, call, route)
	}

	grant, err := g.access.Resolve(ctx, call.Token, route.Namespace, route.Pod)
	if err != nil {
		return nil, accessFailure(err)
	}
	role, ip := grant.Role, grant.PodIP
	g.logger.Debug("resolved role", "namespace", route.Namespace, "pod", route.Pod, "role", role)
	target := g.target(route, ip, call.RawQuery)

	agentPath, err := url.PathUnescape(route.Path)
	if err != nil {
		return nil, parseFailure(fmt.Errorf("%w: Unexpected Jolokia GET request: %s", jolokia.ErrUnexpectedRequest, route.Path))
	}
	payload, err := jolokia.Parse(call.Method, agentPath, call.Body)
	if err != nil {
		return nil, parseFailure(err)
	}

	requests := payload.Requests()
	decisions := make([]acl.Decision, len(requests))
	for i, r := range requests {
		decisions[i] = g.cfg.Policy.Check(r, role)
		if g.metrics != nil {
			g.metrics.RecordDecision(string(role), decisions[i].Allowed)
		}
		if !decisions[i].Allowed {
			g.logger.Debug("request denied", "index", i, "reason", decisions[i].Reason)
		}
	}

	snap, err := g.snapshot(ctx, call, route, ip, requests, decisions, role)
	if err != nil {
		return nil, err
	}

	intercepts := make([]intercept.Result, len(requests))
	for i, r := range requests {
		if !decisions[i].Allowed {
			intercepts[i] = intercept.Result{Request: r}
			continue
		}
		intercepts[i] = g.interceptor.Intercept(r, role, snap)
		if intercepts[i].Intercepted {
			g.logger.Debug("request intercepted", "index", i, "kind", intercepts[i].Kind)
			if g.metrics != nil {
				g.metrics.Intercepted.WithLabelValues(intercepts[i].Kind.String()).Inc()
			}
		}
	}

	if !payload.IsBulk() {
		return g.single(ctx, call, target, decisions[0], intercepts[0])
	}
	return g.bulk(ctx, call, target, requests, decisions, intercepts)
}

// passthrough checks update access only and forwards the call verbatim.
func (g *Gateway) passthrough(ctx context.Context, call *Call, route Route) (*upstream.SimpleResponse, error) {
	grant, err := g.access.Authorize(ctx, call.Token, access.VerbUpdate, route.Namespace, route.Pod)
	if err != nil {
		return nil, accessFailure(err)
	}
	return g.forward(ctx, g.target(route, grant.PodIP, call.RawQuery), call.Method, call.Header, call.Body)
}

func (g *Gateway) single(ctx context.Context, call *Call, target upstream.Target, decision acl.Decision, res intercept.Result) (*upstream.SimpleResponse, error) {
	switch {
	case !decision.Allowed:
		return jsonResponse(http.StatusForbidden, jolokia.Forbidden(res.Request, decision.Reason).Encode()), nil
	case res.Intercepted:
		return jsonResponse(http.StatusOK, res.Response.Encode()), nil
	}
	return g.forward(ctx, target, call.Method, call.Header, call.Body)
}

func (g *Gateway) bulk(ctx context.Context, call *Call, target upstream.Target, requests []*jolokia.Request, decisions []acl.Decision, intercepts []intercept.Result) (*upstream.SimpleResponse, error) {
	var reduced []*jolokia.Request
	for i, r := range requests {
		if decisions[i].Allowed && !intercepts[i].Intercepted {
			reduced = append(reduced, r)
		}
	}
	g.logger.Debug("bulk request", "elements", len(requests), "forwarded", len(reduced))

	var (
		forwarded []json.RawMessage
		headers   http.Header
	)
	if len(reduced) > 0 {
		body, err := json.Marshal(reduced)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode reduced bulk: %w", err)
		}
		resp, err := g.forward(ctx, target, http.MethodPost, call.Header, body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(resp.Body, &forwarded); err != nil {
			return nil, upstreamFailure(fmt.Errorf("%w: decode bulk response: %v", upstream.ErrUpstream, err))
		}
		headers = resp.Headers
	}

	out, err := Assemble(requests, decisions, intercepts, forwarded)
	if err != nil {
		return nil, upstreamFailure(fmt.Errorf("%w: %v", upstream.ErrUpstream, err))
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode bulk response: %w", err)
	}
	resp := jsonResponse(http.StatusOK, body)
	for k, vs := range headers {
		if _, ok := resp.Headers[k]; ok || !reusableBulkHeader(k) {
			continue
		}
		resp.Headers[k] = vs
	}
	return resp, nil
}

// snapshot fetches and optimises the agent registry when an allowed request
// needs it. It returns nil otherwise.
func (g *Gateway) snapshot(ctx context.Context, call *Call, route Route, ip string, requests []*jolokia.Request, decisions []acl.Decision, role acl.Role) (*registry.Snapshot, error) {
	needed := false
	for i, r := range requests {
		if decisions[i].Allowed && acl.IsMBeanListRequired(r) {
			needed = true
			break
		}
	}
	if !needed {
		return nil, nil
	}

	target := upstream.Target{Proto: route.Proto, Host: ip, Port: route.Port, Path: jolokia.BasePath(route.Path)}
	start := time.Now()
	domains, err := g.agent.FetchRegistry(ctx, target, call.Header)
	if g.metrics != nil {
		g.metrics.ObserveUpstream("registry", start)
	}
	if err != nil {
		return nil, upstreamFailure(err)
	}
	return g.optimizer.Optimise(domains, role), nil
}

func (g *Gateway) forward(ctx context.Context, target upstream.Target, method string, header http.Header, body []byte) (*upstream.SimpleResponse, error) {
	start := time.Now()
	resp, err := g.agent.Forward(ctx, target, method, header, body)
	if g.metrics != nil {
		g.metrics.ObserveUpstream("forward", start)
	}
	if err != nil {
		return nil, upstreamFailure(err)
	}
	return resp, nil
}

func (g *Gateway) target(route Route, ip, rawQuery string) upstream.Target {
	path := route.Path
	if rawQuery != "" {
		path += "?" + rawQuery
	}
	return upstream.Target{Proto: route.Proto, Host: ip, Port: route.Port, Path: path}
}

// reusableBulkHeader reports whether an agent header still describes the
// re-encoded bulk body.
func reusableBulkHeader(name string) bool {
	switch http.CanonicalHeaderKey(name) {
	case "Content-Encoding", "Content-Length", "Etag", "Content-Md5":
		return false
	}
	return true
}

func jsonResponse(status int, body []byte) *upstream.SimpleResponse {
	return &upstream.SimpleResponse{
		Status:  status,
		Body:    body,
		Headers: http.Header{"Content-Type": []string{"application/json"}},
	}
}
