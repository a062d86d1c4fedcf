package certinventory

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/function61/gokit/cryptoutil"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// ExportPKCS12 bundles a recorded certificate and its private key into a
// password-protected PKCS#12 blob for handing to client devices.
func (s *Store) ExportPKCS12(ctx context.Context, domain string, password string) ([]byte, error) {
	rec, err := s.ByDomain(ctx, domain)
	if err != nil {
		return nil, err
	}

	fullchain, err := os.ReadFile(rec.FullchainPath)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", domain, err)
	}

	keyPEM, err := os.ReadFile(rec.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", domain, err)
	}

	key, err := cryptoutil.ParsePemEncodedPrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("export %s: parse key: %w", domain, err)
	}

	leaf, caCerts, err := splitChain(fullchain)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", domain, err)
	}

	blob, err := pkcs12.Modern.Encode(key, leaf, caCerts, password)
	if err != nil {
		return nil, fmt.Errorf("export %s: encode: %w", domain, err)
	}

	return blob, nil
}

// first certificate in the bundle is the leaf, the rest are intermediates
func splitChain(bundle []byte) (*x509.Certificate, []*x509.Certificate, error) {
	certs := []*x509.Certificate{}

	rest := bundle
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, nil, err
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, nil, fmt.Errorf("no certificates in bundle")
	}

	return certs[0], certs[1:], nil
}
