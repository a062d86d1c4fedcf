package provision

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/azadnet/vpnops/pkg/services"
	"github.com/function61/gokit/cryptoutil"
	"github.com/function61/gokit/logex"
)

// CertbotIssuer shells out to an external ACME client binary. It predates the
// embedded issuer and stays as the compatibility path: success is detected by
// the client's live-certificate directory appearing for the domain, since the
// binary offers no structured result.
type CertbotIssuer struct {
	binary      string
	liveDir     string
	webrootPath string
	runner      services.Runner
	logl        *logex.Leveled
}

func NewCertbotIssuer(binary string, liveDir string, webrootPath string, runner services.Runner, logger *log.Logger) *CertbotIssuer {
	return &CertbotIssuer{
		binary:      binary,
		liveDir:     liveDir,
		webrootPath: webrootPath,
		runner:      runner,
		logl:        logex.Levels(logger),
	}
}

func (c *CertbotIssuer) Issue(ctx context.Context, domain string, email string, mode IssuanceMode) (*IssuedCertificate, error) {
	args := []string{"certonly", "--non-interactive", "--agree-tos"}

	if email != "" {
		args = append(args, "--email", email)
	} else {
		args = append(args, "--register-unsafely-without-email")
	}

	switch mode {
	case ModeWebroot:
		args = append(args, "--webroot", "-w", c.webrootPath)
	case ModeStandalone:
		args = append(args, "--standalone")
	default:
		return nil, fmt.Errorf("unknown issuance mode: %s", mode)
	}

	args = append(args, "-d", domain)

	out, runErr := c.runner.Run(ctx, c.binary, args...)
	if runErr != nil {
		c.logl.Error.Printf("%s: %v (%s)", c.binary, runErr, out)
	}

	liveDir := filepath.Join(c.liveDir, domain)
	if _, err := os.Stat(liveDir); err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("%s-mode issuance for %s: %w", mode, domain, runErr)
		}
		return nil, fmt.Errorf("%s-mode issuance for %s: no live certificate at %s", mode, domain, liveDir)
	}

	return loadLiveCertificate(liveDir, domain, mode)
}

func loadLiveCertificate(liveDir string, domain string, mode IssuanceMode) (*IssuedCertificate, error) {
	fullchain, err := os.ReadFile(filepath.Join(liveDir, "fullchain.pem"))
	if err != nil {
		return nil, err
	}

	privkey, err := os.ReadFile(filepath.Join(liveDir, "privkey.pem"))
	if err != nil {
		return nil, err
	}

	parsed, err := cryptoutil.ParsePemX509Certificate(fullchain)
	if err != nil {
		return nil, fmt.Errorf("parse live certificate for %s: %w", domain, err)
	}

	return &IssuedCertificate{
		Domain:        domain,
		Mode:          mode,
		FullchainPEM:  fullchain,
		PrivateKeyPEM: privkey,
		NotAfter:      parsed.NotAfter,
	}, nil
}
