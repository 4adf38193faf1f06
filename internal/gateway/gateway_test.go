package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jmxgate/jmxgate/internal/access"
	"github.com/jmxgate/jmxgate/internal/acl"
	"github.com/jmxgate/jmxgate/internal/jolokia"
	"github.com/jmxgate/jmxgate/internal/metrics"
	"github.com/jmxgate/jmxgate/internal/upstream"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

const testPolicy = `
java.lang:type=Memory:
  gc: admin
  get*: viewer
/org\.apache\.karaf:type=bundle,.*/:
  uninstall(java.lang.String): []
  list*: viewer
default:
  get*: viewer
  "*": admin
`

// fakeAuthz grants the verbs in allowed.
type fakeAuthz struct {
	allowed   map[string]bool
	reason    string
	reviewErr error
	podIP     string
	podErr    error
	calls     []string
}

func (f *fakeAuthz) Resolve(ctx context.Context, token, namespace, pod string) (access.Grant, error) {
	f.calls = append(f.calls, "resolve")
	if f.reviewErr != nil {
		return access.Grant{}, f.reviewErr
	}
	var role acl.Role
	switch {
	case f.allowed[access.VerbUpdate]:
		role = acl.RoleAdmin
	case f.allowed[access.VerbGet]:
		role = acl.RoleViewer
	default:
		return access.Grant{}, &access.DeniedError{Verb: access.VerbGet, Namespace: namespace, Pod: pod, Reason: f.reason}
	}
	if f.podErr != nil {
		return access.Grant{}, f.podErr
	}
	return access.Grant{Role: role, PodIP: f.podIP}, nil
}

func (f *fakeAuthz) Authorize(ctx context.Context, token, verb, namespace, pod string) (access.Grant, error) {
	f.calls = append(f.calls, "authorize:"+verb)
	if f.reviewErr != nil {
		return access.Grant{}, f.reviewErr
	}
	if !f.allowed[verb] {
		return access.Grant{}, &access.DeniedError{Verb: verb, Namespace: namespace, Pod: pod, Reason: f.reason}
	}
	if f.podErr != nil {
		return access.Grant{}, f.podErr
	}
	return access.Grant{PodIP: f.podIP}, nil
}

type forwardCall struct {
	target upstream.Target
	method string
	body   []byte
}

// fakeAgent answers a bulk body element by element with "fwd-<operation|mbean>"
// values, and a single request with a fixed value.
type fakeAgent struct {
	forwards   []forwardCall
	registries int
	domains    jolokia.Domains
	header     http.Header
	err        error
}

func (a *fakeAgent) Forward(ctx context.Context, target upstream.Target, method string, header http.Header, body []byte) (*upstream.SimpleResponse, error) {
	a.forwards = append(a.forwards, forwardCall{target: target, method: method, body: body})
	if a.err != nil {
		return nil, a.err
	}
	var out []byte
	if strings.HasPrefix(strings.TrimSpace(string(body)), "[") {
		var rs []*jolokia.Request
		if err := json.Unmarshal(body, &rs); err != nil {
			return nil, err
		}
		rsp := make([]json.RawMessage, len(rs))
		for i, r := range rs {
			rsp[i] = jolokia.OK(r, "fwd-"+r.Operation+r.MBean).Encode()
		}
		out, _ = json.Marshal(rsp)
	} else {
		out = []byte(`{"value":"forwarded","status":200}`)
	}
	headers := http.Header{"Content-Type": []string{"application/json"}, "X-Agent": []string{"jolokia"}}
	for k, vs := range a.header {
		headers[k] = vs
	}
	return &upstream.SimpleResponse{Status: http.StatusOK, Body: out, Headers: headers}, nil
}

func (a *fakeAgent) FetchRegistry(ctx context.Context, target upstream.Target, header http.Header) (jolokia.Domains, error) {
	a.registries++
	if a.err != nil {
		return nil, a.err
	}
	return a.domains, nil
}

func newGateway(t *testing.T, rbac bool, authz *fakeAuthz, agent *fakeAgent) (*Gateway, *metrics.Metrics) {
	t.Helper()
	policy, err := acl.Parse([]byte(testPolicy))
	if err != nil {
		t.Fatalf("acl.Parse: %v", err)
	}
	m := metrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := New(authz, agent, PolicyConfig{RBAC: rbac, Policy: policy}, m, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return gw, m
}

func admin() *fakeAuthz {
	return &fakeAuthz{allowed: map[string]bool{access.VerbUpdate: true, access.VerbGet: true}, podIP: "10.0.0.7"}
}

func viewer() *fakeAuthz {
	return &fakeAuthz{allowed: map[string]bool{access.VerbGet: true}, podIP: "10.0.0.7", reason: "no update"}
}

const podPath = "/management/namespaces/ns1/pods/https:app-0:8778/jolokia"

func post(body string) *Call {
	return &Call{Method: http.MethodPost, Path: podPath + "/", Token: "t0k", Header: http.Header{}, Body: []byte(body)}
}

func decodeArray(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return out
}

func gatewayError(t *testing.T, err error) *Error {
	t.Helper()
	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("error = %v, want *Error", err)
	}
	return ge
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

func TestParseRoute(t *testing.T) {
	r, err := ParseRoute("/management/namespaces/ns1/pods/http:app-0:8778/jolokia/read/java.lang:type=Memory")
	if err != nil {
		t.Fatalf("ParseRoute: %v", err)
	}
	want := Route{Namespace: "ns1", Proto: "http", Pod: "app-0", Port: "8778", Path: "jolokia/read/java.lang:type=Memory"}
	if r != want {
		t.Errorf("route = %+v, want %+v", r, want)
	}

	for _, path := range []string{
		"/management/",
		"/management",
		"/management/namespaces/ns1/pods/ftp:app-0:8778/jolokia",
		"/management/namespaces/ns1/pods/http:app-0/jolokia",
		"/management/namespaces/ns1/pods/http:app-0:port/jolokia",
		"/other/namespaces/ns1/pods/http:app-0:8778/jolokia",
	} {
		_, err := ParseRoute(path)
		ge := gatewayError(t, err)
		if ge.Status != http.StatusNotFound || ge.Kind != KindMalformedURL {
			t.Errorf("%s: status %d kind %s, want 404 malformed", path, ge.Status, ge.Kind)
		}
	}
}

// ---------------------------------------------------------------------------
// RBAC pipeline
// ---------------------------------------------------------------------------

func TestBulkPreservesOrder(t *testing.T) {
	agent := &fakeAgent{}
	gw, m := newGateway(t, true, admin(), agent)

	body := `[
		{"type":"search","mbean":"hawtio:type=security,area=jmx,*"},
		{"type":"exec","mbean":"java.lang:type=Memory","operation":"gc()"},
		{"type":"search","mbean":"org.apache.camel:context=*,type=routes,*"}
	]`
	resp, err := gw.Handle(context.Background(), post(body))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d", resp.Status)
	}

	out := decodeArray(t, resp.Body)
	if len(out) != 3 {
		t.Fatalf("got %d responses, want 3", len(out))
	}
	first, _ := out[0]["value"].([]any)
	if len(first) != 1 || first[0] != jolokia.RBACMBean {
		t.Errorf("response 0 value = %v, want [%s]", out[0]["value"], jolokia.RBACMBean)
	}
	if out[1]["value"] != "fwd-gc()java.lang:type=Memory" {
		t.Errorf("response 1 value = %v", out[1]["value"])
	}
	if out[2]["value"] != "fwd-org.apache.camel:context=*,type=routes,*" {
		t.Errorf("response 2 value = %v", out[2]["value"])
	}

	if len(agent.forwards) != 1 {
		t.Fatalf("agent called %d times, want 1", len(agent.forwards))
	}
	fwd := agent.forwards[0]
	if fwd.method != http.MethodPost || fwd.target.Host != "10.0.0.7" || fwd.target.Proto != "https" || fwd.target.Port != "8778" {
		t.Errorf("forward target = %+v %s", fwd.target, fwd.method)
	}
	var reduced []map[string]any
	if err := json.Unmarshal(fwd.body, &reduced); err != nil {
		t.Fatalf("decode reduced body: %v", err)
	}
	if len(reduced) != 2 {
		t.Errorf("reduced body has %d elements, want 2", len(reduced))
	}
	if strings.Contains(string(fwd.body), "hawtio") {
		t.Errorf("intercepted request forwarded: %s", fwd.body)
	}
	if agent.registries != 0 {
		t.Errorf("registry fetched %d times for a request that does not need it", agent.registries)
	}
	if got := testutil.ToFloat64(m.Intercepted.WithLabelValues("rbac_search")); got != 1 {
		t.Errorf("intercepted metric = %v", got)
	}
	if resp.Headers.Get("X-Agent") != "jolokia" {
		t.Errorf("agent headers not copied: %v", resp.Headers)
	}
}

func TestBulkDeniedElementIsSynthesized(t *testing.T) {
	agent := &fakeAgent{}
	gw, m := newGateway(t, true, viewer(), agent)

	body := `[
		{"type":"read","mbean":"java.lang:type=Memory","attribute":"HeapMemoryUsage"},
		{"type":"exec","mbean":"java.lang:type=Memory","operation":"gc"}
	]`
	resp, err := gw.Handle(context.Background(), post(body))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	out := decodeArray(t, resp.Body)
	if len(out) != 2 {
		t.Fatalf("got %d responses", len(out))
	}
	if out[0]["value"] != "fwd-java.lang:type=Memory" {
		t.Errorf("response 0 = %v", out[0])
	}
	if out[1]["status"] != float64(http.StatusForbidden) {
		t.Errorf("response 1 status = %v, want 403", out[1]["status"])
	}
	req, _ := out[1]["request"].(map[string]any)
	if req["operation"] != "gc" {
		t.Errorf("response 1 request = %v", out[1]["request"])
	}
	if reason, _ := out[1]["reason"].(string); !strings.Contains(reason, "Role 'viewer' denied") {
		t.Errorf("reason = %q", reason)
	}
	if got := testutil.ToFloat64(m.ACLDecisions.WithLabelValues("viewer", "denied")); got != 1 {
		t.Errorf("denied decisions = %v", got)
	}
}

func TestBulkFullyAnsweredLocallySkipsAgent(t *testing.T) {
	agent := &fakeAgent{}
	gw, _ := newGateway(t, true, viewer(), agent)

	body := `[
		{"type":"search","mbean":"hawtio:type=security,area=jmx,*"},
		{"type":"exec","mbean":"java.lang:type=Memory","operation":"gc"}
	]`
	resp, err := gw.Handle(context.Background(), post(body))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(agent.forwards) != 0 {
		t.Errorf("agent called %d times, want 0", len(agent.forwards))
	}
	if out := decodeArray(t, resp.Body); len(out) != 2 {
		t.Errorf("got %d responses", len(out))
	}
}

func TestBulkDropsAgentEncodingHeaders(t *testing.T) {
	agent := &fakeAgent{header: http.Header{
		"Content-Encoding": []string{"gzip"},
		"Content-Length":   []string{"42"},
		"Content-Type":     []string{"text/plain"},
	}}
	gw, _ := newGateway(t, true, viewer(), agent)

	body := `[
		{"type":"search","mbean":"hawtio:type=security,area=jmx,*"},
		{"type":"read","mbean":"java.lang:type=Memory","attribute":"HeapMemoryUsage"}
	]`
	resp, err := gw.Handle(context.Background(), post(body))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	for _, h := range []string{"Content-Encoding", "Content-Length"} {
		if v := resp.Headers.Get(h); v != "" {
			t.Errorf("%s = %q on the assembled body", h, v)
		}
	}
	if ct := resp.Headers.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if resp.Headers.Get("X-Agent") != "jolokia" {
		t.Error("agent header dropped")
	}
	if out := decodeArray(t, resp.Body); len(out) != 2 {
		t.Errorf("got %d responses", len(out))
	}
}

func TestSingleDenied(t *testing.T) {
	for _, authz := range []*fakeAuthz{admin(), viewer()} {
		agent := &fakeAgent{}
		gw, _ := newGateway(t, true, authz, agent)

		resp, err := gw.Handle(context.Background(), post(`{"type":"exec","mbean":"org.apache.karaf:type=bundle,name=root","operation":"uninstall(java.lang.String)","arguments":["0"]}`))
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if resp.Status != http.StatusForbidden {
			t.Errorf("status = %d, want 403", resp.Status)
		}
		var body map[string]any
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["status"] != float64(http.StatusForbidden) || body["reason"] == "" || body["request"] == nil {
			t.Errorf("body = %s", resp.Body)
		}
		if len(agent.forwards) != 0 {
			t.Error("denied request forwarded")
		}
	}
}

func TestSingleForwardedVerbatim(t *testing.T) {
	agent := &fakeAgent{}
	gw, _ := newGateway(t, true, admin(), agent)

	body := `{"type":"exec", "mbean":"java.lang:type=Memory","operation":"gc"}`
	resp, err := gw.Handle(context.Background(), post(body))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusOK || string(resp.Body) != `{"value":"forwarded","status":200}` {
		t.Errorf("resp = %d %s", resp.Status, resp.Body)
	}
	if len(agent.forwards) != 1 || string(agent.forwards[0].body) != body {
		t.Errorf("forwarded body = %q", agent.forwards[0].body)
	}
}

func TestGETIsParsedFromPath(t *testing.T) {
	agent := &fakeAgent{}
	gw, _ := newGateway(t, true, viewer(), agent)

	call := &Call{
		Method:   http.MethodGet,
		Path:     podPath + "/read/java.lang:type=Memory/HeapMemoryUsage",
		RawQuery: "ignoreErrors=true",
		Header:   http.Header{},
	}
	resp, err := gw.Handle(context.Background(), call)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d", resp.Status)
	}
	if len(agent.forwards) != 1 {
		t.Fatalf("forwards = %d", len(agent.forwards))
	}
	fwd := agent.forwards[0]
	if fwd.method != http.MethodGet || fwd.target.Path != "jolokia/read/java.lang:type=Memory/HeapMemoryUsage?ignoreErrors=true" {
		t.Errorf("forward = %s %s", fwd.method, fwd.target.Path)
	}

	call.Path = podPath + "/exec/java.lang:type=Memory/gc"
	resp, err = gw.Handle(context.Background(), call)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusForbidden {
		t.Errorf("viewer GET exec gc status = %d, want 403", resp.Status)
	}
}

func TestGETInterceptedSearch(t *testing.T) {
	agent := &fakeAgent{}
	gw, _ := newGateway(t, true, viewer(), agent)

	call := &Call{Method: http.MethodGet, Path: podPath + "/search/hawtio:type=security,area=jmx,*", Header: http.Header{}}
	resp, err := gw.Handle(context.Background(), call)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusOK || !strings.Contains(string(resp.Body), jolokia.RBACMBean) {
		t.Errorf("resp = %d %s", resp.Status, resp.Body)
	}
	if len(agent.forwards) != 0 {
		t.Error("intercepted GET forwarded")
	}
}

func TestRegistryFetchedOnlyWhenNeeded(t *testing.T) {
	agent := &fakeAgent{domains: jolokia.Domains{
		"java.lang": {
			"type=Memory": {Op: jolokia.Operations{"gc": {{Ret: "void"}}}},
		},
	}}
	gw, _ := newGateway(t, true, viewer(), agent)

	body := fmt.Sprintf(`{"type":"exec","mbean":%q,"operation":"canInvoke(java.lang.String)","arguments":["java.lang:type=Memory"]}`, jolokia.RBACMBean)
	resp, err := gw.Handle(context.Background(), post(body))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if agent.registries != 1 {
		t.Errorf("registry fetched %d times, want 1", agent.registries)
	}
	if len(agent.forwards) != 0 {
		t.Error("canInvoke forwarded")
	}
	var out map[string]any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["value"] != false {
		t.Errorf("viewer canInvoke Memory = %v, want false", out["value"])
	}
}

func TestParseFailureIncludesPath(t *testing.T) {
	gw, _ := newGateway(t, true, admin(), &fakeAgent{})

	call := &Call{Method: http.MethodGet, Path: podPath + "/bogus/x", Header: http.Header{}}
	_, err := gw.Handle(context.Background(), call)
	ge := gatewayError(t, err)
	if ge.Status != http.StatusBadGateway || ge.Kind != KindRequestParseFailure {
		t.Errorf("status %d kind %s", ge.Status, ge.Kind)
	}
	if !strings.Contains(ge.Message, "Unexpected Jolokia GET request: jolokia/bogus/x") {
		t.Errorf("message = %q", ge.Message)
	}

	_, err = gw.Handle(context.Background(), post(`{"mbean":"x"`))
	if ge := gatewayError(t, err); ge.Kind != KindRequestParseFailure {
		t.Errorf("body parse kind = %s", ge.Kind)
	}
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestAccessFailures(t *testing.T) {
	tests := []struct {
		name   string
		authz  *fakeAuthz
		status int
		kind   Kind
	}{
		{
			name:   "denied",
			authz:  &fakeAuthz{reason: "user cannot get pods"},
			status: http.StatusForbidden,
			kind:   KindAuthorizationDenied,
		},
		{
			name:   "review transport",
			authz:  &fakeAuthz{reviewErr: fmt.Errorf("%w: connection refused", access.ErrReview)},
			status: http.StatusBadGateway,
			kind:   KindAuthorizationFailure,
		},
		{
			name:   "pod ip",
			authz:  &fakeAuthz{allowed: map[string]bool{access.VerbGet: true}, podErr: fmt.Errorf("%w: no IP", access.ErrPodResolution)},
			status: http.StatusBadGateway,
			kind:   KindPodResolutionFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := &fakeAgent{}
			gw, m := newGateway(t, true, tt.authz, agent)
			_, err := gw.Handle(context.Background(), post(`{"type":"version"}`))
			ge := gatewayError(t, err)
			if ge.Status != tt.status || ge.Kind != tt.kind {
				t.Errorf("status %d kind %s, want %d %s", ge.Status, ge.Kind, tt.status, tt.kind)
			}
			if len(agent.forwards) != 0 {
				t.Error("agent called after access failure")
			}
			if got := testutil.ToFloat64(m.GatewayRequests.WithLabelValues("rbac", string(tt.kind))); got != 1 {
				t.Errorf("outcome metric = %v", got)
			}
		})
	}

	gw, _ := newGateway(t, true, &fakeAuthz{reason: "user cannot get pods"}, &fakeAgent{})
	_, err := gw.Handle(context.Background(), post(`{"type":"version"}`))
	if ge := gatewayError(t, err); ge.Reason != "user cannot get pods" {
		t.Errorf("reason = %q, want review reason verbatim", ge.Reason)
	}
}

func TestUpstreamStatusPropagated(t *testing.T) {
	agent := &fakeAgent{err: &upstream.StatusError{Status: http.StatusServiceUnavailable}}
	gw, _ := newGateway(t, true, admin(), agent)

	_, err := gw.Handle(context.Background(), post(`{"type":"version"}`))
	ge := gatewayError(t, err)
	if ge.Status != http.StatusServiceUnavailable || ge.Kind != KindUpstreamAgentFailure {
		t.Errorf("status %d kind %s", ge.Status, ge.Kind)
	}

	agent.err = fmt.Errorf("%w: dial tcp: refused", upstream.ErrUpstream)
	_, err = gw.Handle(context.Background(), post(`{"type":"version"}`))
	if ge := gatewayError(t, err); ge.Status != http.StatusBadGateway {
		t.Errorf("transport failure status = %d, want 502", ge.Status)
	}
}

// ---------------------------------------------------------------------------
// RBAC disabled
// ---------------------------------------------------------------------------

func TestPassthrough(t *testing.T) {
	t.Run("admin forwarded verbatim", func(t *testing.T) {
		agent := &fakeAgent{}
		authz := admin()
		gw, _ := newGateway(t, false, authz, agent)

		body := `[{"type":"search","mbean":"hawtio:type=security,area=jmx,*"},{"type":"exec","mbean":"org.apache.karaf:type=bundle,name=root","operation":"uninstall(java.lang.String)","arguments":["0"]}]`
		if _, err := gw.Handle(context.Background(), post(body)); err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if len(agent.forwards) != 1 || string(agent.forwards[0].body) != body {
			t.Errorf("forwarded %q", agent.forwards[0].body)
		}
		if len(authz.calls) != 1 || authz.calls[0] != "authorize:update" {
			t.Errorf("access calls = %v", authz.calls)
		}
	})

	t.Run("viewer rejected", func(t *testing.T) {
		agent := &fakeAgent{}
		gw, m := newGateway(t, false, viewer(), agent)

		_, err := gw.Handle(context.Background(), post(`{"type":"version"}`))
		ge := gatewayError(t, err)
		if ge.Status != http.StatusForbidden {
			t.Errorf("status = %d, want 403", ge.Status)
		}
		if len(agent.forwards) != 0 {
			t.Error("viewer request forwarded")
		}
		if got := testutil.ToFloat64(m.GatewayRequests.WithLabelValues("passthrough", string(KindAuthorizationDenied))); got != 1 {
			t.Errorf("outcome metric = %v", got)
		}
	})
}

func TestNewRequiresPolicyWithRBAC(t *testing.T) {
	_, err := New(admin(), &fakeAgent{}, PolicyConfig{RBAC: true}, nil, slog.Default())
	if err == nil {
		t.Error("expected error without policy")
	}
}

// ---------------------------------------------------------------------------
// HTTP adapter
// ---------------------------------------------------------------------------

func TestHandlerHTTP(t *testing.T) {
	agent := &fakeAgent{}
	gw, _ := newGateway(t, true, admin(), agent)
	h := NewHandler(gw, HandlerConfig{
		MaxBodySize: 1 << 10,
		Token:       func(r *http.Request) string { return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") },
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	t.Run("bare mount is 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/management/", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}
		var body map[string]any
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body["message"] != "URL not recognized: /management/" {
			t.Errorf("body = %s", rec.Body)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, podPath, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("body too large", func(t *testing.T) {
		rec := httptest.NewRecorder()
		big := `{"type":"version","x":"` + strings.Repeat("a", 2048) + `"}`
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, podPath, strings.NewReader(big)))
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("forwarded", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, podPath, strings.NewReader(`{"type":"version"}`))
		req.Header.Set("Authorization", "Bearer abc")
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Header().Get("X-Agent") != "jolokia" {
			t.Errorf("status = %d headers %v", rec.Code, rec.Header())
		}
	})

	t.Run("upstream failure body", func(t *testing.T) {
		agent.err = &upstream.StatusError{Status: http.StatusInternalServerError}
		defer func() { agent.err = nil }()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, podPath, strings.NewReader(`{"type":"version"}`)))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"message"`) {
			t.Errorf("body = %s", rec.Body)
		}
	})
}
