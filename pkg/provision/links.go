package provision

import (
	"fmt"
	"os"
	"path/filepath"
)

// SymlinkActivator writes issued material under the per-domain live layout
// and atomically repoints the stable symlinks the proxy config references.
// Live files are replaced, never mutated in place.
type SymlinkActivator struct {
	LiveDir string // e.g. /etc/letsencrypt/live
	SSLDir  string // e.g. /etc/nginx/ssl
}

var _ Activator = (*SymlinkActivator)(nil)

func (a *SymlinkActivator) Activate(cert *IssuedCertificate) (*ActivatedPaths, error) {
	domainDir := filepath.Join(a.LiveDir, cert.Domain)
	if err := os.MkdirAll(domainDir, 0755); err != nil {
		return nil, fmt.Errorf("live dir: %w", err)
	}

	fullchain := filepath.Join(domainDir, "fullchain.pem")
	privkey := filepath.Join(domainDir, "privkey.pem")

	if err := writeFileAtomic(fullchain, cert.FullchainPEM, 0644); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(privkey, cert.PrivateKeyPEM, 0600); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(a.SSLDir, 0755); err != nil {
		return nil, fmt.Errorf("ssl dir: %w", err)
	}

	if err := relink(fullchain, filepath.Join(a.SSLDir, "fullchain.pem")); err != nil {
		return nil, err
	}
	if err := relink(privkey, filepath.Join(a.SSLDir, "privkey.pem")); err != nil {
		return nil, err
	}

	return &ActivatedPaths{
		FullchainPath:  fullchain,
		PrivateKeyPath: privkey,
	}, nil
}

func writeFileAtomic(path string, content []byte, mode os.FileMode) error {
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, content, mode); err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	return nil
}

// rename-over-symlink makes the repoint atomic for readers
func relink(target string, link string) error {
	tmp := link + ".tmp"
	os.Remove(tmp)

	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("relink %s: %w", link, err)
	}

	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("relink %s: %w", link, err)
	}

	return nil
}
