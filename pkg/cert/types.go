package cert

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"time"
)

// Certificate validity periods.
const (
	// CAValidity is the validity period for generated CA certificates.
	CAValidity = 10 * 365 * 24 * time.Hour // 10 years

	// LeafValidity is the default validity period for leaf certificates.
	LeafValidity = 365 * 24 * time.Hour // 1 year

	// RenewalWindow is how long before expiry a certificate counts as due.
	RenewalWindow = 30 * 24 * time.Hour // 30 days
)

// ErrInvalidCert indicates a missing or unusable certificate.
var ErrInvalidCert = errors.New("invalid certificate")

// KeyPair holds an ECDSA P-256 key pair.
type KeyPair struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
}

// Identity is a certificate together with its private key and any
// intermediate certificates to present with it.
type Identity struct {
	// Certificate is the leaf certificate.
	Certificate *x509.Certificate

	// PrivateKey is the key matching Certificate.
	PrivateKey crypto.Signer

	// Chain holds intermediates, leaf issuer first. May be empty.
	Chain []*x509.Certificate
}

// TLSCertificate converts the identity to a tls.Certificate for use in
// TLS connections.
func (id *Identity) TLSCertificate() tls.Certificate {
	if id == nil || id.Certificate == nil || id.PrivateKey == nil {
		return tls.Certificate{}
	}
	raw := make([][]byte, 0, 1+len(id.Chain))
	raw = append(raw, id.Certificate.Raw)
	for _, c := range id.Chain {
		raw = append(raw, c.Raw)
	}
	return tls.Certificate{
		Certificate: raw,
		PrivateKey:  id.PrivateKey,
		Leaf:        id.Certificate,
	}
}

// CertPool returns a pool holding only the identity's certificate,
// suitable as tls.Config.RootCAs when the identity is a CA.
func (id *Identity) CertPool() *x509.CertPool {
	if id == nil || id.Certificate == nil {
		return nil
	}
	pool := x509.NewCertPool()
	pool.AddCert(id.Certificate)
	return pool
}

// ExpiresAt returns when the certificate expires.
func (id *Identity) ExpiresAt() time.Time {
	if id == nil || id.Certificate == nil {
		return time.Time{}
	}
	return id.Certificate.NotAfter
}

// NeedsRenewal returns true if the certificate expires within RenewalWindow.
func (id *Identity) NeedsRenewal() bool {
	if id == nil || id.Certificate == nil {
		return true
	}
	return time.Now().Add(RenewalWindow).After(id.Certificate.NotAfter)
}

// IsExpired returns true if the certificate has expired.
func (id *Identity) IsExpired() bool {
	if id == nil || id.Certificate == nil {
		return true
	}
	return time.Now().After(id.Certificate.NotAfter)
}
