package provision

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/function61/gokit/assert"
)

func TestCertbotIssuerBuildsWebrootArgs(t *testing.T) {
	runner := &scriptedRunner{err: errors.New("exit status 1")}
	issuer := NewCertbotIssuer("certbot", t.TempDir(), "/var/www/html", runner, nil)

	_, err := issuer.Issue(context.Background(), "panel.example.com", "ops@example.com", ModeWebroot)
	assert.Assert(t, err != nil)

	assert.EqualString(t, runner.command,
		"certbot certonly --non-interactive --agree-tos --email ops@example.com --webroot -w /var/www/html -d panel.example.com")
}

func TestCertbotIssuerStandaloneWithoutEmail(t *testing.T) {
	runner := &scriptedRunner{err: errors.New("exit status 1")}
	issuer := NewCertbotIssuer("certbot", t.TempDir(), "/var/www/html", runner, nil)

	_, err := issuer.Issue(context.Background(), "panel.example.com", "", ModeStandalone)
	assert.Assert(t, err != nil)

	assert.EqualString(t, runner.command,
		"certbot certonly --non-interactive --agree-tos --register-unsafely-without-email --standalone -d panel.example.com")
}

func TestCertbotIssuerSuccessDetectedByLiveDirectory(t *testing.T) {
	liveRoot := t.TempDir()
	notAfter := time.Date(2026, 6, 14, 12, 0, 0, 0, time.UTC)

	domainDir := filepath.Join(liveRoot, "panel.example.com")
	assert.Ok(t, os.MkdirAll(domainDir, 0755))
	assert.Ok(t, os.WriteFile(filepath.Join(domainDir, "fullchain.pem"), selfSignedPEM(t, notAfter), 0644))
	assert.Ok(t, os.WriteFile(filepath.Join(domainDir, "privkey.pem"), []byte("key material"), 0600))

	issuer := NewCertbotIssuer("certbot", liveRoot, "/var/www/html", &scriptedRunner{}, nil)

	cert, err := issuer.Issue(context.Background(), "panel.example.com", "", ModeWebroot)
	assert.Ok(t, err)
	assert.EqualString(t, cert.Domain, "panel.example.com")
	assert.Assert(t, cert.NotAfter.Equal(notAfter))
	assert.EqualString(t, string(cert.PrivateKeyPEM), "key material")
}

func TestCertbotIssuerFailureWithoutLiveDirectory(t *testing.T) {
	issuer := NewCertbotIssuer("certbot", t.TempDir(), "/var/www/html", &scriptedRunner{}, nil)

	_, err := issuer.Issue(context.Background(), "panel.example.com", "", ModeWebroot)
	assert.Assert(t, err != nil)
	assert.Assert(t, strings.Contains(err.Error(), "no live certificate"))
}

type scriptedRunner struct {
	command string
	err     error
}

func (s *scriptedRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	s.command = name + " " + strings.Join(args, " ")
	return "", s.err
}

func selfSignedPEM(t *testing.T, notAfter time.Time) []byte {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	assert.Ok(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "panel.example.com"},
		NotBefore:    notAfter.AddDate(0, -3, 0),
		NotAfter:     notAfter,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	assert.Ok(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}
