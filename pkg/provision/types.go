// Acquires a TLS certificate for a domain and makes it active in the reverse
// proxy, trying the non-disruptive webroot method before the disruptive
// standalone one.
package provision

import (
	"context"
	"fmt"
	"time"
)

type IssuanceMode string

const (
	ModeWebroot    IssuanceMode = "webroot"
	ModeStandalone IssuanceMode = "standalone"
)

type IssuedCertificate struct {
	Domain        string
	Mode          IssuanceMode
	FullchainPEM  []byte // leaf + intermediates
	PrivateKeyPEM []byte
	NotAfter      time.Time
}

// Issuer runs one ACME issuance attempt in the given mode and reports the
// outcome as a structured result.
type Issuer interface {
	Issue(ctx context.Context, domain string, email string, mode IssuanceMode) (*IssuedCertificate, error)
}

type ProxyController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
}

type ActivatedPaths struct {
	FullchainPath  string
	PrivateKeyPath string
}

// Activator installs issued material into the live layout and repoints the
// stable paths the proxy config references.
type Activator interface {
	Activate(cert *IssuedCertificate) (*ActivatedPaths, error)
}

type Outcome struct {
	Domain         string
	Mode           IssuanceMode
	FullchainPath  string
	PrivateKeyPath string
	ExpiresAt      time.Time
}

// Recorder persists a successful issuance for later listing/renewal.
type Recorder interface {
	RecordIssued(ctx context.Context, outcome Outcome, issuedAt time.Time) error
}

// ProvisioningFailure means both the webroot and the standalone attempt
// failed. There is no further recovery path; the proxy has been left running.
type ProvisioningFailure struct {
	Domain        string
	WebrootErr    error
	StandaloneErr error
}

func (e *ProvisioningFailure) Error() string {
	return fmt.Sprintf(
		"provisioning %s failed: webroot: %v; standalone: %v",
		e.Domain,
		e.WebrootErr,
		e.StandaloneErr)
}
