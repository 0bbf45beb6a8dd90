package httpserver

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxxin/serve-once/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.Load(strings.NewReader(doc))
	require.NoError(t, err)
	return cfg
}

func peerCert(cn string) *tls.ConnectionState {
	return &tls.ConnectionState{
		PeerCertificates: []*x509.Certificate{
			{Subject: pkix.Name{CommonName: cn}},
		},
	}
}

func TestAdmitDefaultConfig(t *testing.T) {
	h := NewHandler(testConfig(t, "payload: test_payload"), testLogger(), io.Discard)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "12", resp.Header.Get("Content-Length"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "test_payload", string(body))

	select {
	case <-h.Done():
	default:
		t.Fatal("delivery must signal the controller")
	}
}

func TestRejectWrongMethod(t *testing.T) {
	h := NewHandler(testConfig(t, ""), testLogger(), io.Discard)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	// The service is still waiting; a correct request succeeds afterwards.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRejectWrongPath(t *testing.T) {
	h := NewHandler(testConfig(t, "request_path: /valid_path"), testLogger(), io.Discard)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/invalid_path", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/valid_path", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRejectWrongHeader(t *testing.T) {
	h := NewHandler(testConfig(t, "request_header:\n  Authorization: Bearer sesame"), testLogger(), io.Discard)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing header")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "wrong value")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer sesame")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRejectWrongClientIP(t *testing.T) {
	h := NewHandler(testConfig(t, "request_ip: 192.0.2.7"), testLogger(), io.Discard)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:40000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:40000"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRejectMissingClientCert(t *testing.T) {
	h := NewHandler(testConfig(t, "mtls: true\nca_cert: unused-here"), testLogger(), io.Discard)

	// The handshake normally guarantees a peer certificate; the pipeline
	// re-checks defensively.
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRejectWrongClientIdentity(t *testing.T) {
	h := NewHandler(testConfig(t, "mtls: true\nca_cert: unused-here\nmtls_clientid: client.example.com"),
		testLogger(), io.Discard)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = peerCert("wrongclient.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = peerCert("client.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// Identity is checked even without mtls enforcement when a client id is
// configured, and the checks run in their fixed order: a request failing
// several checks is answered by the earliest one.
func TestCheckOrdering(t *testing.T) {
	h := NewHandler(testConfig(t, "request_path: /valid_path\nrequest_method: GET"), testLogger(), io.Discard)

	// Fails method (405) and path (404); method is checked first.
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/invalid_path", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestDeliverExactlyOnce(t *testing.T) {
	h := NewHandler(testConfig(t, ""), testLogger(), io.Discard)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusConflict, w.Code, "a second satisfier must not be delivered")
}

func TestRequestBodyEcho(t *testing.T) {
	var stdout bytes.Buffer
	h := NewHandler(testConfig(t, "request_body_to_stdout: true\nrequest_method: POST"), testLogger(), &stdout)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("host report"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "host report", stdout.String())
}
