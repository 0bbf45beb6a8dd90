package cryptoutils

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// SelfSignedCertificate generates a throwaway ECDSA P-256 key pair and a
// self-signed certificate for hostname. It is used when no credential is
// configured, so the service can always start; the resulting chain is not
// anchored in any trust store and callers must be told about that.
//
// The certificate carries hostname as both common name and DNS SAN, is valid
// for server and client authentication, and is back-dated by one day to
// tolerate clock skew between the service and its single client. Validity
// ends one year from now.
//
// Returns the private key and certificate in PEM format. Nothing is cached
// and nothing is persisted; every call yields a fresh pair.
func SelfSignedCertificate(hostname string) (TLSKey, TLSCert, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: hostname,
		},
		DNSNames:              []string{hostname},
		NotBefore:             now.AddDate(0, 0, -1),
		NotAfter:              now.AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template,
		privateKey.Public(), privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	privKeyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privKeyBytes})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	return TLSKey(keyPEM), TLSCert(certPEM), nil
}

// VerifyCertificate validates that a certificate matches a given private key
// and has the expected common name. It performs the following checks:
//   - the certificate can be parsed correctly
//   - the common name matches the expected value
//   - the public key in the certificate corresponds to the private key
func VerifyCertificate(keyPEM TLSKey, certPEM TLSCert, expectedCN string) error {
	privateKey, err := keyPEM.GetPrivateKey()
	if err != nil {
		return err
	}

	cert, err := certPEM.GetX509Cert()
	if err != nil {
		return err
	}

	if cert.Subject.CommonName != expectedCN {
		return fmt.Errorf("CommonName is %s, expected %s", cert.Subject.CommonName, expectedCN)
	}

	signer, ok := privateKey.(interface{ Public() crypto.PublicKey })
	if !ok {
		return errors.New("private key does not expose a public key")
	}

	certKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("unsupported certificate key type: %T", cert.PublicKey)
	}
	privPubKey, ok := signer.Public().(*ecdsa.PublicKey)
	if !ok {
		return errors.New("private key type doesn't match certificate")
	}

	if certKey.X.Cmp(privPubKey.X) != 0 ||
		certKey.Y.Cmp(privPubKey.Y) != 0 ||
		certKey.Curve != privPubKey.Curve {
		return errors.New("private key doesn't match certificate")
	}
	return nil
}
