package upstream

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newForwarder() *Forwarder {
	return NewWithClient(http.DefaultClient, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// targetFor points a Target at an httptest server.
func targetFor(t *testing.T, srv *httptest.Server, path string) Target {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	return Target{Proto: u.Scheme, Host: host, Port: port, Path: path}
}

// ---------------------------------------------------------------------------
// Forward
// ---------------------------------------------------------------------------

func TestForwardPost(t *testing.T) {
	var got *http.Request
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Connection", "close")
		w.Header().Set("X-Jolokia-Agent", "2.0")
		w.Write([]byte(`[{"status":200}]`))
	}))
	t.Cleanup(srv.Close)

	header := http.Header{}
	header.Set("Authorization", "Bearer cluster-token")
	header.Set("Content-Type", "text/plain")
	header.Set("Accept", "application/json")
	header.Set("Connection", "X-Secret")
	header.Set("X-Secret", "hop")
	header.Set("Proxy-Authorization", "Basic abc")

	resp, err := newForwarder().Forward(context.Background(), targetFor(t, srv, "/actuator/jolokia/?ignoreErrors=true"),
		http.MethodPost, header, []byte(`[{"type":"version"}]`))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if got.URL.Path != "/actuator/jolokia/" || got.URL.RawQuery != "ignoreErrors=true" {
		t.Errorf("agent saw %s?%s", got.URL.Path, got.URL.RawQuery)
	}
	if gotBody != `[{"type":"version"}]` {
		t.Errorf("agent body = %q", gotBody)
	}
	if got.Header.Get("Authorization") != "" {
		t.Error("cluster credentials leaked to the agent")
	}
	if got.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", got.Header.Get("Content-Type"))
	}
	if got.Header.Get("Accept") != "application/json" {
		t.Error("end-to-end header dropped")
	}
	for _, h := range []string{"X-Secret", "Proxy-Authorization"} {
		if got.Header.Get(h) != "" {
			t.Errorf("hop-by-hop header %s forwarded", h)
		}
	}

	if resp.Status != http.StatusOK || string(resp.Body) != `[{"status":200}]` {
		t.Errorf("response = %d %s", resp.Status, resp.Body)
	}
	if resp.Headers.Get("X-Jolokia-Agent") != "2.0" || resp.Headers.Get("Connection") != "" {
		t.Errorf("response headers = %v", resp.Headers)
	}
}

// gzipAgent compresses every reply when the request allows it.
func gzipAgent(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			w.Write([]byte(body))
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		zw.Write([]byte(body))
		zw.Close()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestForwardDecodesCompressedReply(t *testing.T) {
	srv := gzipAgent(t, `[{"status":200,"value":"2.0"}]`)

	header := http.Header{}
	header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := newForwarder().Forward(context.Background(), targetFor(t, srv, "jolokia"),
		http.MethodPost, header, []byte(`[{"type":"version"}]`))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if string(resp.Body) != `[{"status":200,"value":"2.0"}]` {
		t.Errorf("body = %q", resp.Body)
	}
	if ce := resp.Headers.Get("Content-Encoding"); ce != "" {
		t.Errorf("Content-Encoding = %q on a decoded body", ce)
	}
}

func TestFetchRegistryCompressedReply(t *testing.T) {
	srv := gzipAgent(t, `{"status":200,"value":{"java.lang":{"type=Memory":{"op":{"gc":{"args":[],"ret":"void"}}}}}}`)

	header := http.Header{}
	header.Set("Accept-Encoding", "gzip")

	domains, err := newForwarder().FetchRegistry(context.Background(), targetFor(t, srv, "jolokia"), header)
	if err != nil {
		t.Fatalf("FetchRegistry: %v", err)
	}
	if domains["java.lang"]["type=Memory"] == nil {
		t.Fatalf("registry = %+v", domains)
	}
}

func TestForwardGetHasNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.ContentLength > 0 {
			t.Errorf("unexpected %s with length %d", r.Method, r.ContentLength)
		}
		w.Write([]byte(`{"status":200}`))
	}))
	t.Cleanup(srv.Close)

	if _, err := newForwarder().Forward(context.Background(), targetFor(t, srv, "jolokia/version"), http.MethodGet, nil, []byte("ignored")); err != nil {
		t.Fatalf("Forward: %v", err)
	}
}

func TestForwardStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("agent starting"))
	}))
	t.Cleanup(srv.Close)

	_, err := newForwarder().Forward(context.Background(), targetFor(t, srv, "jolokia"), http.MethodPost, nil, []byte(`{}`))
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusServiceUnavailable {
		t.Fatalf("Forward error = %v, want StatusError 503", err)
	}
	if !errors.Is(err, ErrUpstream) || string(se.Body) != "agent starting" {
		t.Errorf("status error = %+v", se)
	}
}

func TestForwardConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := targetFor(t, srv, "jolokia")
	srv.Close()

	_, err := newForwarder().Forward(context.Background(), target, http.MethodPost, nil, []byte(`{}`))
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Forward error = %v, want ErrUpstream", err)
	}
	var se *StatusError
	if errors.As(err, &se) {
		t.Error("connection failure should not carry a status")
	}
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestFetchRegistry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if string(b) != `{"type":"list"}` {
			t.Errorf("registry request = %s", b)
		}
		w.Write([]byte(`{"status":200,"value":{"java.lang":{"type=Memory":{"class":"sun.management.MemoryImpl","op":{"gc":{"args":[],"ret":"void"}}}}}}`))
	}))
	t.Cleanup(srv.Close)

	domains, err := newForwarder().FetchRegistry(context.Background(), targetFor(t, srv, "jolokia"), nil)
	if err != nil {
		t.Fatalf("FetchRegistry: %v", err)
	}
	mem := domains["java.lang"]["type=Memory"]
	if mem == nil || len(mem.Op["gc"]) != 1 {
		t.Fatalf("registry = %+v", domains)
	}
}

func TestFetchRegistryJolokiaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":403,"error":"list not permitted"}`))
	}))
	t.Cleanup(srv.Close)

	if _, err := newForwarder().FetchRegistry(context.Background(), targetFor(t, srv, "jolokia"), nil); !errors.Is(err, ErrUpstream) {
		t.Fatalf("FetchRegistry error = %v, want ErrUpstream", err)
	}
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

func TestTargetURL(t *testing.T) {
	tt := Target{Proto: "https", Host: "fd00::12", Port: "8778", Path: "/jolokia/"}
	if got := tt.URL(); got != "https://[fd00::12]:8778/jolokia/" {
		t.Errorf("URL() = %q", got)
	}
}

func TestNewRejectsBadCA(t *testing.T) {
	ca := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(ca, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{CAFile: ca}, slog.Default()); err == nil {
		t.Error("expected error for CA without certificates")
	}
	if _, err := New(Config{CertFile: "/missing.crt", KeyFile: "/missing.key"}, slog.Default()); err == nil {
		t.Error("expected error for missing client certificate")
	}
	if _, err := New(Config{InsecureSkipVerify: true}, slog.Default()); err != nil {
		t.Errorf("New: %v", err)
	}
}
