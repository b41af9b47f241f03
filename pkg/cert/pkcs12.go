package cert

import (
	"crypto/tls"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// ErrInvalidPKCS12 indicates an unreadable PKCS#12 bundle.
var ErrInvalidPKCS12 = errors.New("invalid PKCS#12 bundle")

// DecodePKCS12 decodes a PKCS#12 bundle holding one private key and its
// certificate chain.
func DecodePKCS12(data []byte, password string) (*Identity, error) {
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPKCS12, err)
	}

	var pemData []byte
	for _, b := range blocks {
		pemData = append(pemData, pem.EncodeToMemory(b)...)
	}

	pair, err := tls.X509KeyPair(pemData, pemData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPKCS12, err)
	}

	certs, err := DecodeCertsPEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPKCS12, err)
	}

	signer, err := asSigner(pair.PrivateKey)
	if err != nil {
		return nil, err
	}

	// The leaf is the certificate matching the key; the rest is chain.
	leaf := pair.Leaf
	var chain = certs[:0:0]
	for _, c := range certs {
		if leaf != nil && c.Equal(leaf) {
			continue
		}
		chain = append(chain, c)
	}
	if leaf == nil {
		leaf, chain = certs[0], certs[1:]
	}

	return &Identity{Certificate: leaf, PrivateKey: signer, Chain: chain}, nil
}

// LoadPKCS12 reads and decodes a PKCS#12 (.p12/.pfx) file.
func LoadPKCS12(path, password string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return DecodePKCS12(data, password)
}
