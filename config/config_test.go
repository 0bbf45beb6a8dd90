package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyDocumentYieldsDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, "", cfg.RequestIP)
	assert.Equal(t, "/", cfg.RequestPath)
	assert.Equal(t, "GET", cfg.RequestMethod)
	assert.Empty(t, cfg.RequestHeader)
	assert.False(t, cfg.RequestBodyToStdout)
	assert.Equal(t, "0.0.0.0", cfg.ServeIP)
	assert.Equal(t, 0, cfg.ServePort)
	assert.Equal(t, "localhost", cfg.Hostname)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
	assert.False(t, cfg.MutualTLS)
	assert.Equal(t, map[string]string{"Content-Type": "application/json"}, cfg.ResponseHeaders)
	assert.Equal(t, "true", cfg.Payload)
}

func TestLoadOverrides(t *testing.T) {
	doc := `
serve_port: 8443
timeout: 5
payload: "test_payload"
request_path: /valid_path
request_method: post
`
	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, 8443, cfg.ServePort)
	assert.Equal(t, 5, cfg.TimeoutSeconds)
	assert.Equal(t, "test_payload", cfg.Payload)
	assert.Equal(t, "/valid_path", cfg.RequestPath)
	assert.Equal(t, "POST", cfg.RequestMethod, "method is normalized to upper case")

	// Untouched keys keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.ServeIP)
	assert.Equal(t, "localhost", cfg.Hostname)
}

func TestLoadMergesMappings(t *testing.T) {
	doc := `
response_headers:
  X-Secret-Kind: boot-config
request_header:
  Authorization: Bearer token
`
	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	// The default Content-Type survives next to the added header.
	assert.Equal(t, "application/json", cfg.ResponseHeaders["Content-Type"])
	assert.Equal(t, "boot-config", cfg.ResponseHeaders["X-Secret-Kind"])
	assert.Equal(t, "Bearer token", cfg.RequestHeader["Authorization"])
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	doc := `
payload: hello
some_future_option: 42
nested_unknown:
  a: b
`
	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "hello", cfg.Payload)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	_, err := Load(strings.NewReader("payload: [unclosed"))
	require.Error(t, err)
}

func TestValidateMutualTLSRequiresCA(t *testing.T) {
	_, err := Load(strings.NewReader("mtls: true"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ca_cert")

	cfg, err := Load(strings.NewReader("mtls: true\nca_cert: |\n  -----BEGIN CERTIFICATE-----\n"))
	require.NoError(t, err)
	assert.True(t, cfg.MutualTLS)
}

func TestValidateRejections(t *testing.T) {
	for name, doc := range map[string]string{
		"zero timeout":     "timeout: 0",
		"negative timeout": "timeout: -3",
		"bad request_ip":   "request_ip: not-an-ip",
		"bad serve_ip":     "serve_ip: nope",
		"bad port":         "serve_port: 70000",
		"relative path":    "request_path: no-slash",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
}

func TestListenAddr(t *testing.T) {
	cfg, err := Load(strings.NewReader("serve_ip: 127.0.0.1\nserve_port: 4443"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4443", cfg.ListenAddr())
}
