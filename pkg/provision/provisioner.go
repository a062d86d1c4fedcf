package provision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/azadnet/vpnops/pkg/notify"
	"github.com/function61/gokit/logex"
	"github.com/gofrs/flock"
)

var ErrDomainRequired = errors.New("domain is required")

type Provisioner struct {
	Inventory Recorder    // optional
	Events    *notify.Hub // optional
	LockPath  string      // optional, guards against concurrent runs

	issuer    Issuer
	proxy     ProxyController
	activator Activator
	now       func() time.Time
	logl      *logex.Leveled
}

func New(issuer Issuer, proxy ProxyController, activator Activator, logger *log.Logger) *Provisioner {
	return &Provisioner{
		issuer:    issuer,
		proxy:     proxy,
		activator: activator,
		now:       time.Now,
		logl:      logex.Levels(logger),
	}
}

// Provision obtains a certificate for the domain and wires it into the
// reverse proxy: webroot attempt first (proxy untouched), standalone fallback
// second (proxy stopped for the attempt, restarted unconditionally), then
// symlink activation and a proxy restart to pick up the new certificate.
func (p *Provisioner) Provision(ctx context.Context, domain string, email string) (*Outcome, error) {
	if domain == "" {
		return nil, ErrDomainRequired
	}

	if p.LockPath != "" {
		lock := flock.New(p.LockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("provision lock: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("another provisioning run holds %s", p.LockPath)
		}
		defer lock.Unlock()
	}

	cert, webrootErr := p.issuer.Issue(ctx, domain, email, ModeWebroot)
	if webrootErr != nil {
		p.logl.Error.Printf("webroot issuance for %s: %v (falling back to standalone)", domain, webrootErr)

		var standaloneErr error
		cert, standaloneErr = p.standaloneAttempt(ctx, domain, email)
		if standaloneErr != nil {
			failure := &ProvisioningFailure{
				Domain:        domain,
				WebrootErr:    webrootErr,
				StandaloneErr: standaloneErr,
			}
			p.pushEvent(notify.Error, failure.Error())
			return nil, failure
		}
	}

	paths, err := p.activator.Activate(cert)
	if err != nil {
		return nil, fmt.Errorf("activate certificate for %s: %w", domain, err)
	}

	// proxy picks up the new certificate
	if err := p.proxy.Restart(ctx); err != nil {
		return nil, fmt.Errorf("restart proxy: %w", err)
	}

	outcome := &Outcome{
		Domain:         domain,
		Mode:           cert.Mode,
		FullchainPath:  paths.FullchainPath,
		PrivateKeyPath: paths.PrivateKeyPath,
		ExpiresAt:      cert.NotAfter,
	}

	p.record(ctx, outcome)
	p.pushEvent(notify.Success, fmt.Sprintf(
		"certificate for %s issued via %s, expires %s",
		domain,
		cert.Mode,
		cert.NotAfter.Format("2006-01-02")))

	return outcome, nil
}

func (p *Provisioner) standaloneAttempt(ctx context.Context, domain string, email string) (*IssuedCertificate, error) {
	// the proxy holds the listening port that standalone validation needs
	if err := p.proxy.Stop(ctx); err != nil {
		p.logl.Error.Printf("stop proxy: %v (standalone attempt will likely fail to bind)", err)
	}

	// restarted unconditionally so the proxy never stays down on failure
	defer func() {
		if err := p.proxy.Restart(ctx); err != nil {
			p.logl.Error.Printf("restart proxy after standalone attempt: %v", err)
		}
	}()

	return p.issuer.Issue(ctx, domain, email, ModeStandalone)
}

func (p *Provisioner) record(ctx context.Context, outcome *Outcome) {
	if p.Inventory == nil {
		return
	}

	// bookkeeping only, the certificate is already live
	if err := p.Inventory.RecordIssued(ctx, *outcome, p.now()); err != nil {
		p.logl.Error.Printf("inventory record for %s: %v", outcome.Domain, err)
	}
}

func (p *Provisioner) pushEvent(level notify.Level, message string) {
	if p.Events != nil {
		p.Events.Push(level, message)
	}
}
