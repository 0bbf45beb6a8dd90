package cryptoutils

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// TLSCert represents a TLS certificate in PEM format.
type TLSCert []byte

// NewTLSCert creates a new certificate object from PEM-encoded data with validation.
func NewTLSCert(data []byte) (TLSCert, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("invalid certificate: not in PEM format or not a certificate")
	}

	if _, err := x509.ParseCertificate(block.Bytes); err != nil {
		return nil, fmt.Errorf("invalid certificate structure: %w", err)
	}

	return TLSCert(data), nil
}

// GetX509Cert returns the parsed X.509 certificate.
func (cert TLSCert) GetX509Cert() (*x509.Certificate, error) {
	block, _ := pem.Decode(cert)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	return x509.ParseCertificate(block.Bytes)
}

// TLSKey represents a TLS private key in PEM format.
type TLSKey []byte

// NewTLSKey creates a new private key object from PEM-encoded data with validation.
func NewTLSKey(data []byte) (TLSKey, error) {
	key := TLSKey(data)
	if _, err := key.GetPrivateKey(); err != nil {
		return nil, err
	}
	return key, nil
}

// GetPrivateKey returns the parsed private key. PKCS#8 and SEC 1 EC encodings
// are accepted.
func (key TLSKey) GetPrivateKey() (any, error) {
	block, _ := pem.Decode(key)
	if block == nil {
		return nil, errors.New("invalid private key: failed to decode PEM block")
	}

	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return parsed, nil
	}
	if parsed, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return parsed, nil
	}
	return nil, errors.New("invalid private key structure")
}

// CACert represents a certificate authority certificate in PEM format.
type CACert []byte

// NewCACert creates a new CA certificate object from PEM-encoded data with
// validation. The certificate must carry the CA basic constraint.
func NewCACert(data []byte) (CACert, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("invalid CA certificate: not in PEM format or not a certificate")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("invalid CA certificate structure: %w", err)
	}

	if !cert.IsCA {
		return nil, errors.New("certificate is not a CA certificate (IsCA flag not set)")
	}

	return CACert(data), nil
}

// CertPool returns a certificate pool containing this CA certificate,
// suitable for client certificate verification.
func (ca CACert) CertPool() (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return nil, errors.New("failed to add CA certificate to pool")
	}
	return pool, nil
}
