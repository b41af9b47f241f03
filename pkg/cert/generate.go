package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"
)

// Options describes a certificate to generate.
type Options struct {
	// CommonName is the subject CN.
	CommonName string

	// DNSNames and IPAddresses become subject alternative names.
	DNSNames    []string
	IPAddresses []net.IP

	// Validity is the lifetime. Zero selects LeafValidity (or CAValidity
	// for CAs).
	Validity time.Duration

	// IsCA marks the certificate as a certificate authority.
	IsCA bool

	// ClientAuth adds the client authentication extended key usage.
	ClientAuth bool
}

// GenerateKeyPair generates a new ECDSA P-256 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeyPair{PrivateKey: key, PublicKey: &key.PublicKey}, nil
}

// ComputeSKI computes the subject key identifier of a public key
// (SHA-1 over the encoded point, RFC 5280 method 1).
func ComputeSKI(pub *ecdsa.PublicKey) ([]byte, error) {
	ecdh, err := pub.ECDH()
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}
	sum := sha1.Sum(ecdh.Bytes())
	return sum[:], nil
}

// GenerateSelfSigned creates a self-signed certificate and key.
func GenerateSelfSigned(opts Options) (*Identity, error) {
	return issue(opts, nil)
}

// Issue creates a certificate signed by ca.
func Issue(ca *Identity, opts Options) (*Identity, error) {
	if ca == nil || ca.Certificate == nil || ca.PrivateKey == nil {
		return nil, fmt.Errorf("%w: issuer required", ErrInvalidCert)
	}
	if !ca.Certificate.IsCA {
		return nil, fmt.Errorf("%w: issuer is not a CA", ErrInvalidCert)
	}
	return issue(opts, ca)
}

func issue(opts Options, ca *Identity) (*Identity, error) {
	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	ski, err := ComputeSKI(kp.PublicKey)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	validity := opts.Validity
	if validity == 0 {
		validity = LeafValidity
		if opts.IsCA {
			validity = CAValidity
		}
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: opts.CommonName},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(validity),
		SubjectKeyId: ski,
		DNSNames:     opts.DNSNames,
		IPAddresses:  opts.IPAddresses,

		BasicConstraintsValid: true,
	}

	if opts.IsCA {
		template.IsCA = true
		template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature
	} else {
		template.KeyUsage = x509.KeyUsageDigitalSignature
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
		if opts.ClientAuth {
			template.ExtKeyUsage = append(template.ExtKeyUsage, x509.ExtKeyUsageClientAuth)
		}
	}

	parent := template
	var signer any = kp.PrivateKey
	if ca != nil {
		parent = ca.Certificate
		signer = ca.PrivateKey
		template.AuthorityKeyId = ca.Certificate.SubjectKeyId
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parent, kp.PublicKey, signer)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	return &Identity{Certificate: cert, PrivateKey: kp.PrivateKey}, nil
}
