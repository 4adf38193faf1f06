package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jmxgate/jmxgate/internal/model"
)

// HandlerConfig controls the net/http adapter.
type HandlerConfig struct {
	// MaxBodySize caps inbound bodies in bytes. Zero means unlimited.
	MaxBodySize int64
	// Token returns the caller's bearer token. The server installs its
	// authentication middleware's accessor here.
	Token func(r *http.Request) string
}

// Handler adapts a Gateway to net/http.
type Handler struct {
	gw     *Gateway
	cfg    HandlerConfig
	logger *slog.Logger
}

// NewHandler returns the HTTP entry point of the gateway.
func NewHandler(gw *Gateway, cfg HandlerConfig, logger *slog.Logger) *Handler {
	return &Handler{gw: gw, cfg: cfg, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var body []byte
	if r.Method == http.MethodPost {
		reader := io.Reader(r.Body)
		if h.cfg.MaxBodySize > 0 {
			reader = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
		}
		data, err := io.ReadAll(reader)
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", mbe.Limit), "")
				return
			}
			writeError(w, http.StatusBadRequest, "unable to read request body", "")
			return
		}
		body = data
	}

	var token string
	if h.cfg.Token != nil {
		token = h.cfg.Token(r)
	}

	call := &Call{
		Method:   r.Method,
		Path:     r.URL.EscapedPath(),
		RawQuery: r.URL.RawQuery,
		Token:    token,
		Header:   r.Header,
		Body:     body,
	}
	resp, err := h.gw.Handle(r.Context(), call)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	// Headers already set by the server (CORS, request id) win over the agent's.
	for k, vs := range resp.Headers {
		if _, ok := w.Header()[http.CanonicalHeaderKey(k)]; ok {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var ge *Error
	if !errors.As(err, &ge) {
		h.logger.Error("gateway call failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	if ge.Status >= 500 {
		h.logger.Warn("gateway call failed", "path", r.URL.Path, "kind", ge.Kind, "error", err)
	}
	writeError(w, ge.Status, ge.Message, ge.Reason)
}

// writeJSON serializes v as JSON and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope.
func writeError(w http.ResponseWriter, status int, message, reason string) {
	writeJSON(w, status, model.ErrorResponse{
		Status:  status,
		Message: message,
		Reason:  reason,
	})
}
