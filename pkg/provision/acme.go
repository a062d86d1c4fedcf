package provision

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"os"

	"github.com/function61/gokit/cryptoutil"
	"github.com/function61/gokit/logex"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/http01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
)

// LegoIssuer issues certificates with the embedded ACME client. Success and
// failure are structured results, not filesystem side effects (those remain
// the CertbotIssuer's compatibility behavior).
type LegoIssuer struct {
	CADirURL string // empty means the client's default CA directory
	HTTPPort string // standalone-mode bind port

	webrootPath    string
	accountKeyPath string
	logl           *logex.Leveled
}

func NewLegoIssuer(webrootPath string, accountKeyPath string, logger *log.Logger) *LegoIssuer {
	return &LegoIssuer{
		HTTPPort:       "80",
		webrootPath:    webrootPath,
		accountKeyPath: accountKeyPath,
		logl:           logex.Levels(logger),
	}
}

type acmeAccount struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (a *acmeAccount) GetEmail() string                        { return a.email }
func (a *acmeAccount) GetRegistration() *registration.Resource { return a.registration }
func (a *acmeAccount) GetPrivateKey() crypto.PrivateKey        { return a.key }

func (i *LegoIssuer) Issue(ctx context.Context, domain string, email string, mode IssuanceMode) (*IssuedCertificate, error) {
	key, err := i.loadOrCreateAccountKey()
	if err != nil {
		return nil, err
	}

	account := &acmeAccount{email: email, key: key}

	conf := lego.NewConfig(account)
	if i.CADirURL != "" {
		conf.CADirURL = i.CADirURL
	}

	client, err := lego.NewClient(conf)
	if err != nil {
		return nil, fmt.Errorf("acme client: %w", err)
	}

	switch mode {
	case ModeWebroot:
		// challenge served from the shared webroot, proxy keeps running
		err = client.Challenge.SetHTTP01Provider(&webrootChallengeWriter{webrootPath: i.webrootPath})
	case ModeStandalone:
		// binds the HTTP port itself, the caller must have freed it
		err = client.Challenge.SetHTTP01Provider(http01.NewProviderServer("", i.HTTPPort))
	default:
		return nil, fmt.Errorf("unknown issuance mode: %s", mode)
	}
	if err != nil {
		return nil, err
	}

	if email == "" {
		i.logl.Info.Printf("registering without a contact email")
	}

	// non-interactive, terms of service auto-accepted. registering an already
	// known account key returns the existing account
	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("acme registration: %w", err)
	}
	account.registration = reg

	resp, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{domain},
		Bundle:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s-mode issuance for %s: %w", mode, domain, err)
	}

	parsed, err := cryptoutil.ParsePemX509Certificate(resp.Certificate)
	if err != nil {
		return nil, err
	}

	return &IssuedCertificate{
		Domain:        domain,
		Mode:          mode,
		FullchainPEM:  resp.Certificate,
		PrivateKeyPEM: resp.PrivateKey,
		NotAfter:      parsed.NotAfter,
	}, nil
}

func (i *LegoIssuer) loadOrCreateAccountKey() (crypto.PrivateKey, error) {
	if pemBytes, err := os.ReadFile(i.accountKeyPath); err == nil {
		return cryptoutil.ParsePemEncodedPrivateKey(pemBytes)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("account key: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	if err := os.WriteFile(i.accountKeyPath, pemBytes, 0600); err != nil {
		return nil, fmt.Errorf("write account key: %w", err)
	}

	i.logl.Info.Printf("created new ACME account key at %s", i.accountKeyPath)

	return key, nil
}
