package provision

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/azadnet/vpnops/pkg/notify"
	"github.com/function61/gokit/assert"
	"github.com/gofrs/flock"
)

func TestEmptyDomainDoesNothing(t *testing.T) {
	issuer := &fakeIssuer{}
	proxy := &fakeProxy{}

	_, err := New(issuer, proxy, &fakeActivator{}, nil).Provision(context.Background(), "", "")

	assert.Assert(t, errors.Is(err, ErrDomainRequired))
	assert.Assert(t, len(issuer.attempts) == 0)
	assert.Assert(t, len(proxy.ops) == 0)
}

func TestWebrootSuccessNeverStopsProxy(t *testing.T) {
	issuer := &fakeIssuer{}
	proxy := &fakeProxy{}
	activator := &fakeActivator{}
	recorder := &recordingRecorder{}

	provisioner := New(issuer, proxy, activator, nil)
	provisioner.Inventory = recorder
	provisioner.Events = notify.NewHub(nil)

	outcome, err := provisioner.Provision(context.Background(), "panel.example.com", "ops@example.com")
	assert.Ok(t, err)

	assert.EqualString(t, string(outcome.Mode), "webroot")
	assert.EqualString(t, strings.Join(issuer.attempts, ","), "webroot")

	// proxy only restarted once, after linking
	assert.EqualString(t, strings.Join(proxy.ops, ","), "restart")

	assert.Assert(t, len(activator.activated) == 1)
	assert.EqualString(t, activator.activated[0].Domain, "panel.example.com")

	assert.Assert(t, len(recorder.recorded) == 1)
	assert.EqualString(t, recorder.recorded[0].Domain, "panel.example.com")

	active := provisioner.Events.Active()
	assert.Assert(t, len(active) == 1)
	assert.Assert(t, active[0].Level == notify.Success)
}

func TestStandaloneFallback(t *testing.T) {
	issuer := &fakeIssuer{webrootErr: errors.New("challenge file unreachable")}
	proxy := &fakeProxy{}
	activator := &fakeActivator{}

	outcome, err := New(issuer, proxy, activator, nil).Provision(context.Background(), "panel.example.com", "")
	assert.Ok(t, err)

	assert.EqualString(t, string(outcome.Mode), "standalone")
	assert.EqualString(t, strings.Join(issuer.attempts, ","), "webroot,standalone")

	// stopped exactly once, restarted exactly once, then reloaded again after
	// linking; proxy ends in a running state
	assert.EqualString(t, strings.Join(proxy.ops, ","), "stop,restart,restart")
	assert.Assert(t, proxy.running)
}

func TestBothAttemptsFail(t *testing.T) {
	issuer := &fakeIssuer{
		webrootErr:    errors.New("webroot says no"),
		standaloneErr: errors.New("standalone says no"),
	}
	proxy := &fakeProxy{}
	activator := &fakeActivator{}
	recorder := &recordingRecorder{}

	provisioner := New(issuer, proxy, activator, nil)
	provisioner.Inventory = recorder
	provisioner.Events = notify.NewHub(nil)

	_, err := provisioner.Provision(context.Background(), "panel.example.com", "")

	failure := &ProvisioningFailure{}
	assert.Assert(t, errors.As(err, &failure))
	assert.EqualString(t, failure.WebrootErr.Error(), "webroot says no")
	assert.EqualString(t, failure.StandaloneErr.Error(), "standalone says no")

	// proxy is still running at exit, thanks to the unconditional restart
	assert.EqualString(t, strings.Join(proxy.ops, ","), "stop,restart")
	assert.Assert(t, proxy.running)

	// no symlinks were touched, nothing recorded
	assert.Assert(t, len(activator.activated) == 0)
	assert.Assert(t, len(recorder.recorded) == 0)

	active := provisioner.Events.Active()
	assert.Assert(t, len(active) == 1)
	assert.Assert(t, active[0].Level == notify.Error)
}

func TestActivationFailureIsFatal(t *testing.T) {
	issuer := &fakeIssuer{}
	activator := &fakeActivator{err: errors.New("disk full")}

	_, err := New(issuer, &fakeProxy{}, activator, nil).Provision(context.Background(), "panel.example.com", "")

	assert.Assert(t, err != nil)
	assert.Assert(t, strings.Contains(err.Error(), "disk full"))
}

func TestLockPreventsConcurrentRuns(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "provision.lock")

	held := flock.New(lockPath)
	locked, err := held.TryLock()
	assert.Ok(t, err)
	assert.Assert(t, locked)
	defer held.Unlock()

	issuer := &fakeIssuer{}
	provisioner := New(issuer, &fakeProxy{}, &fakeActivator{}, nil)
	provisioner.LockPath = lockPath

	_, err = provisioner.Provision(context.Background(), "panel.example.com", "")
	assert.Assert(t, err != nil)
	assert.Assert(t, strings.Contains(err.Error(), "another provisioning run"))
	assert.Assert(t, len(issuer.attempts) == 0)
}

type fakeIssuer struct {
	webrootErr    error
	standaloneErr error
	attempts      []string
}

func (f *fakeIssuer) Issue(_ context.Context, domain string, _ string, mode IssuanceMode) (*IssuedCertificate, error) {
	f.attempts = append(f.attempts, string(mode))

	switch mode {
	case ModeWebroot:
		if f.webrootErr != nil {
			return nil, f.webrootErr
		}
	case ModeStandalone:
		if f.standaloneErr != nil {
			return nil, f.standaloneErr
		}
	}

	return &IssuedCertificate{
		Domain:        domain,
		Mode:          mode,
		FullchainPEM:  []byte("fullchain pem"),
		PrivateKeyPEM: []byte("privkey pem"),
		NotAfter:      time.Date(2026, 6, 14, 12, 0, 0, 0, time.UTC),
	}, nil
}

type fakeProxy struct {
	ops     []string
	running bool
}

func (f *fakeProxy) Start(_ context.Context) error {
	f.ops = append(f.ops, "start")
	f.running = true
	return nil
}

func (f *fakeProxy) Stop(_ context.Context) error {
	f.ops = append(f.ops, "stop")
	f.running = false
	return nil
}

func (f *fakeProxy) Restart(_ context.Context) error {
	f.ops = append(f.ops, "restart")
	f.running = true
	return nil
}

type fakeActivator struct {
	activated []*IssuedCertificate
	err       error
}

func (f *fakeActivator) Activate(cert *IssuedCertificate) (*ActivatedPaths, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.activated = append(f.activated, cert)

	return &ActivatedPaths{
		FullchainPath:  "/etc/letsencrypt/live/" + cert.Domain + "/fullchain.pem",
		PrivateKeyPath: "/etc/letsencrypt/live/" + cert.Domain + "/privkey.pem",
	}, nil
}

type recordingRecorder struct {
	recorded []Outcome
}

func (r *recordingRecorder) RecordIssued(_ context.Context, outcome Outcome, _ time.Time) error {
	r.recorded = append(r.recorded, outcome)
	return nil
}
