package cert

import (
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Verification errors.
var (
	ErrCertExpired     = errors.New("certificate has expired")
	ErrCertNotYetValid = errors.New("certificate is not yet valid")
	ErrInvalidChain    = errors.New("invalid certificate chain")
	ErrPinMismatch     = errors.New("certificate pin mismatch")
)

// VerifyChain verifies that cert chains to one of roots, optionally via
// intermediates, and is valid now.
func VerifyChain(cert *x509.Certificate, intermediates []*x509.Certificate, roots *x509.CertPool, usage x509.ExtKeyUsage) error {
	if cert == nil {
		return ErrInvalidCert
	}
	if roots == nil {
		return fmt.Errorf("%w: roots required", ErrInvalidChain)
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return ErrCertNotYetValid
	}
	if now.After(cert.NotAfter) {
		return ErrCertExpired
	}

	pool := x509.NewCertPool()
	for _, c := range intermediates {
		pool.AddCert(c)
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: pool,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{usage},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChain, err)
	}
	return nil
}

// PinVerifier returns a tls.Config.VerifyPeerCertificate callback that
// accepts the peer only when its leaf SubjectKeyId matches one of pins
// (hex, case and colons ignored). It runs after regular chain
// verification, or alone when InsecureSkipVerify is set.
func PinVerifier(pins ...string) func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	want := make(map[string]struct{}, len(pins))
	for _, p := range pins {
		want[normalizePin(p)] = struct{}{}
	}
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("no peer certificate")
		}
		peer, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("parse peer certificate: %w", err)
		}
		if _, ok := want[hex.EncodeToString(peer.SubjectKeyId)]; !ok {
			return fmt.Errorf("%w: %s", ErrPinMismatch, FormatSKI(peer.SubjectKeyId))
		}
		return nil
	}
}

// FormatSKI renders a subject key identifier as colon-separated hex.
func FormatSKI(ski []byte) string {
	parts := make([]string, len(ski))
	for i, b := range ski {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}

func normalizePin(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, ":", ""))
}

// CertificateInfo summarizes a certificate for display.
type CertificateInfo struct {
	Subject      string
	Issuer       string
	SerialNumber string
	NotBefore    time.Time
	NotAfter     time.Time
	IsCA         bool
	DNSNames     []string
	SKI          string
}

// GetCertificateInfo extracts display information from a certificate.
func GetCertificateInfo(cert *x509.Certificate) CertificateInfo {
	return CertificateInfo{
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		SerialNumber: cert.SerialNumber.Text(16),
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
		IsCA:         cert.IsCA,
		DNSNames:     cert.DNSNames,
		SKI:          FormatSKI(cert.SubjectKeyId),
	}
}
