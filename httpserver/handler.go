package httpserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/atomic"

	"github.com/wuxxin/serve-once/config"
)

// RequestError provides structured error information for rejected requests.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Handler runs the admission pipeline for every incoming request and
// delivers the payload to the single request that passes all checks.
//
// The checks run in a fixed, short-circuiting order; any failure produces an
// error response for that request only and the service keeps waiting. A check
// has no side effect beyond logging until every prior check has passed.
type Handler struct {
	cfg    *config.Config
	log    *slog.Logger
	stdout io.Writer

	delivered *atomic.Bool
	done      chan struct{}
}

// NewHandler creates the admission handler. stdout receives the request body
// of the admitted request when configured; it is a parameter so tests can
// capture the echo.
func NewHandler(cfg *config.Config, log *slog.Logger, stdout io.Writer) *Handler {
	return &Handler{
		cfg:       cfg,
		log:       log,
		stdout:    stdout,
		delivered: atomic.NewBool(false),
		done:      make(chan struct{}),
	}
}

// Done is closed once the payload has been delivered and the response
// written. The delivery controller waits on it.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// ServeHTTP routes the request through the admission pipeline and, on full
// admission, performs the one delivery this service exists for.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := []func(*http.Request) *RequestError{
		h.checkClientCertPresent,
		h.checkClientIdentity,
		h.checkClientIP,
		h.checkMethod,
		h.checkHeaders,
		h.checkPath,
	}

	for _, check := range checks {
		if reqErr := check(r); reqErr != nil {
			h.log.Debug("request rejected",
				"status", reqErr.StatusCode, "reason", reqErr.Err, "remote", r.RemoteAddr)
			http.Error(w, reqErr.Error(), reqErr.StatusCode)
			return
		}
	}

	// Exactly one request may win. A second satisfier racing the shutdown
	// of the accept loop is turned away here.
	if !h.delivered.CompareAndSwap(false, true) {
		h.log.Debug("request rejected", "reason", "payload already delivered", "remote", r.RemoteAddr)
		http.Error(w, "payload already delivered", http.StatusConflict)
		return
	}

	if h.cfg.RequestBodyToStdout {
		if _, err := io.Copy(h.stdout, r.Body); err != nil {
			h.log.Warn("failed to echo request body", "err", err)
		}
	}

	payload := []byte(h.cfg.Payload)
	for name, value := range h.cfg.ResponseHeaders {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		h.log.Warn("failed to write payload", "err", err)
	}

	h.log.Info("payload delivered", "remote", r.RemoteAddr, "method", r.Method, "path", r.URL.Path)
	close(h.done)
}

// checkClientCertPresent re-checks at the request layer that a client
// certificate was presented when mutual TLS is required. The TLS handshake
// already enforces this; a request without peer certificates here means the
// server was wired up without that enforcement.
func (h *Handler) checkClientCertPresent(r *http.Request) *RequestError {
	if !h.cfg.MutualTLS {
		return nil
	}
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return &RequestError{http.StatusUnauthorized, errors.New("client certificate required")}
	}
	return nil
}

// checkClientIdentity compares the client certificate's common name to the
// configured identity. Exact string equality, no pattern matching.
func (h *Handler) checkClientIdentity(r *http.Request) *RequestError {
	if h.cfg.MutualTLSClientID == "" {
		return nil
	}
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return &RequestError{http.StatusUnauthorized, errors.New("client certificate required for identity check")}
	}
	cn := r.TLS.PeerCertificates[0].Subject.CommonName
	if cn != h.cfg.MutualTLSClientID {
		return &RequestError{http.StatusUnauthorized,
			fmt.Errorf("client identity %q does not match required %q", cn, h.cfg.MutualTLSClientID)}
	}
	return nil
}

func (h *Handler) checkClientIP(r *http.Request) *RequestError {
	if h.cfg.RequestIP == "" {
		return nil
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return &RequestError{http.StatusForbidden,
			fmt.Errorf("unparseable peer address %q", r.RemoteAddr)}
	}
	peer := net.ParseIP(host)
	want := net.ParseIP(h.cfg.RequestIP)
	if peer == nil || !peer.Equal(want) {
		return &RequestError{http.StatusForbidden,
			fmt.Errorf("peer address %q does not match required %q", host, h.cfg.RequestIP)}
	}
	return nil
}

func (h *Handler) checkMethod(r *http.Request) *RequestError {
	if r.Method != h.cfg.RequestMethod {
		return &RequestError{http.StatusMethodNotAllowed,
			fmt.Errorf("method %q does not match required %q", r.Method, h.cfg.RequestMethod)}
	}
	return nil
}

func (h *Handler) checkHeaders(r *http.Request) *RequestError {
	for name, want := range h.cfg.RequestHeader {
		if got := r.Header.Get(name); got != want {
			return &RequestError{http.StatusBadRequest,
				fmt.Errorf("header %q value %q does not match required value", name, got)}
		}
	}
	return nil
}

func (h *Handler) checkPath(r *http.Request) *RequestError {
	if r.URL.Path != h.cfg.RequestPath {
		return &RequestError{http.StatusNotFound,
			fmt.Errorf("path %q does not match required %q", r.URL.Path, h.cfg.RequestPath)}
	}
	return nil
}
