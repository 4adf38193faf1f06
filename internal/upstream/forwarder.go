// Package upstream issues requests to the Jolokia agent running in a pod.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jmxgate/jmxgate/internal/jolokia"
)

// ErrUpstream is wrapped by every agent failure.
var ErrUpstream = errors.New("upstream agent failure")

// StatusError is an agent response with a non-2xx status.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent responded with status %d", e.Status)
}

func (e *StatusError) Unwrap() error { return ErrUpstream }

// Config controls the HTTP client used for agents.
type Config struct {
	Timeout            time.Duration
	CAFile             string
	CertFile           string
	KeyFile            string
	InsecureSkipVerify bool
}

// SimpleResponse is the transport-independent agent response.
type SimpleResponse struct {
	Status  int
	Body    []byte
	Headers http.Header
}

// Target addresses a Jolokia endpoint inside a pod.
type Target struct {
	Proto string // http or https
	Host  string // pod IP
	Port  string
	Path  string // Jolokia path, escaped, optionally with a query
}

// URL renders proto://host:port/path.
func (t Target) URL() string {
	return t.Proto + "://" + net.JoinHostPort(t.Host, t.Port) + "/" + strings.TrimPrefix(t.Path, "/")
}

// Forwarder sends requests to agents.
type Forwarder struct {
	client *http.Client
	logger *slog.Logger
}

// New builds a forwarder with its own transport configured from cfg.
func New(cfg Config, logger *slog.Logger) (*Forwarder, error) {
	tlsCfg, err := tlsConfig(cfg)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	return NewWithClient(&http.Client{Transport: transport, Timeout: cfg.Timeout}, logger), nil
}

// NewWithClient uses client as is.
func NewWithClient(client *http.Client, logger *slog.Logger) *Forwarder {
	return &Forwarder{client: client, logger: logger}
}

func tlsConfig(cfg Config) (*tls.Config, error) {
	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read upstream CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("upstream CA %s contains no certificates", cfg.CAFile)
		}
		tc.RootCAs = pool
	}
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load upstream client certificate: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	return tc, nil
}

// Forward issues one request to the agent. GET requests carry no body. A
// non-2xx answer is returned as a *StatusError.
func (f *Forwarder) Forward(ctx context.Context, target Target, method string, header http.Header, body []byte) (*SimpleResponse, error) {
	var reader io.Reader
	if method != http.MethodGet && body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.URL(), reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header = OutboundHeaders(header)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("agent request failed", "url", target.URL(), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	f.logger.Debug("agent responded", "url", target.URL(), "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Warn("agent returned error status", "url", target.URL(), "status", resp.StatusCode)
		return nil, &StatusError{Status: resp.StatusCode, Body: data}
	}
	return &SimpleResponse{
		Status:  resp.StatusCode,
		Body:    data,
		Headers: InboundHeaders(resp.Header),
	}, nil
}

var listRequest = []byte(`{"type":"list"}`)

// FetchRegistry retrieves the agent's full MBean registry.
func (f *Forwarder) FetchRegistry(ctx context.Context, target Target, header http.Header) (jolokia.Domains, error) {
	resp, err := f.Forward(ctx, target, http.MethodPost, header, listRequest)
	if err != nil {
		return nil, err
	}
	var list jolokia.ListResponse
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, fmt.Errorf("%w: decode registry: %v", ErrUpstream, err)
	}
	if list.Status != http.StatusOK {
		return nil, fmt.Errorf("%w: registry list returned status %d: %s", ErrUpstream, list.Status, list.Error)
	}
	return list.Value, nil
}
