// Package config holds the configuration model for the one-shot delivery
// service. A configuration is a YAML mapping merged over built-in defaults;
// the merged record is immutable once constructed and handed by reference to
// every component.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config describes a single delivery run: what the one admitted request must
// look like, where to listen, the credential material, and the payload.
type Config struct {
	// RequestIP restricts the peer address of the admitted request.
	// Empty accepts any origin.
	RequestIP string `yaml:"request_ip"`

	// RequestPath is the URL path the admitted request must use.
	RequestPath string `yaml:"request_path"`

	// RequestHeader lists header name/value pairs that must all be present
	// with exactly the given value.
	RequestHeader map[string]string `yaml:"request_header"`

	// RequestMethod is the HTTP method the admitted request must use.
	RequestMethod string `yaml:"request_method"`

	// RequestBodyToStdout echoes the admitted request's body to stdout.
	RequestBodyToStdout bool `yaml:"request_body_to_stdout"`

	// ServeIP and ServePort form the listen address. Port 0 requests a
	// kernel-assigned ephemeral port.
	ServeIP   string `yaml:"serve_ip"`
	ServePort int    `yaml:"serve_port"`

	// Hostname becomes the CN and DNS SAN of the generated fallback
	// certificate when no credential is supplied.
	Hostname string `yaml:"hostname"`

	// TimeoutSeconds is the overall wait budget for the delivery.
	TimeoutSeconds int `yaml:"timeout"`

	// Cert and Key are the PEM-encoded server credential. When either is
	// empty a throwaway self-signed pair is generated instead.
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`

	// CACert is the PEM-encoded trusted root used to verify client
	// certificates. Required when MutualTLS is set.
	CACert string `yaml:"ca_cert"`

	// MutualTLS makes a client certificate mandatory at the TLS layer.
	MutualTLS bool `yaml:"mtls"`

	// MutualTLSClientID restricts the client certificate's common name.
	// Empty accepts any CN signed by CACert.
	MutualTLSClientID string `yaml:"mtls_clientid"`

	// ResponseHeaders are sent with the payload response.
	ResponseHeaders map[string]string `yaml:"response_headers"`

	// Payload is the response body delivered to the admitted request.
	Payload string `yaml:"payload"`
}

// Defaults returns the built-in configuration. Every caller-supplied document
// is merged over this record.
func Defaults() Config {
	return Config{
		RequestPath:     "/",
		RequestHeader:   map[string]string{},
		RequestMethod:   "GET",
		ServeIP:         "0.0.0.0",
		ServePort:       0,
		Hostname:        "localhost",
		TimeoutSeconds:  30,
		ResponseHeaders: map[string]string{"Content-Type": "application/json"},
		Payload:         "true",
	}
}

// Load reads a YAML configuration document, merges it over the defaults and
// validates the result. An empty document yields pure defaults. Unknown keys
// are ignored.
func Load(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	var overrides any
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("invalid configuration YAML: %w", err)
	}

	defaultsRaw, err := yaml.Marshal(Defaults())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	var base any
	if err := yaml.Unmarshal(defaultsRaw, &base); err != nil {
		return nil, fmt.Errorf("failed to decode defaults: %w", err)
	}

	merged, err := yaml.Marshal(Merge(base, overrides))
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged configuration: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(merged, &cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.RequestMethod = strings.ToUpper(cfg.RequestMethod)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks constraints that must hold before the listener starts.
// Violations are fatal configuration errors.
func (c *Config) Validate() error {
	if c.MutualTLS && c.CACert == "" {
		return errors.New("mtls requires ca_cert to be set")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.TimeoutSeconds)
	}
	if c.ServePort < 0 || c.ServePort > 65535 {
		return fmt.Errorf("serve_port out of range: %d", c.ServePort)
	}
	if c.RequestIP != "" && net.ParseIP(c.RequestIP) == nil {
		return fmt.Errorf("request_ip is not a valid IP address: %q", c.RequestIP)
	}
	if c.ServeIP != "" && net.ParseIP(c.ServeIP) == nil {
		return fmt.Errorf("serve_ip is not a valid IP address: %q", c.ServeIP)
	}
	if c.RequestMethod == "" {
		return errors.New("request_method must not be empty")
	}
	if !strings.HasPrefix(c.RequestPath, "/") {
		return fmt.Errorf("request_path must start with '/': %q", c.RequestPath)
	}
	return nil
}

// ListenAddr returns the host:port string the listener binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.ServeIP, fmt.Sprintf("%d", c.ServePort))
}
