package provision

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/function61/gokit/assert"
)

func TestActivateWritesLiveFilesAndSymlinks(t *testing.T) {
	base := t.TempDir()

	activator := &SymlinkActivator{
		LiveDir: filepath.Join(base, "live"),
		SSLDir:  filepath.Join(base, "ssl"),
	}

	paths, err := activator.Activate(dummyCert("panel.example.com", "cert v1", "key v1"))
	assert.Ok(t, err)

	assert.EqualString(t, paths.FullchainPath, filepath.Join(base, "live", "panel.example.com", "fullchain.pem"))

	fullchainLink := filepath.Join(base, "ssl", "fullchain.pem")
	target, err := os.Readlink(fullchainLink)
	assert.Ok(t, err)
	assert.EqualString(t, target, paths.FullchainPath)

	content, err := os.ReadFile(fullchainLink)
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "cert v1")

	keyInfo, err := os.Stat(paths.PrivateKeyPath)
	assert.Ok(t, err)
	assert.Assert(t, keyInfo.Mode().Perm() == 0600)
}

func TestReissuanceReplacesLiveFiles(t *testing.T) {
	base := t.TempDir()

	activator := &SymlinkActivator{
		LiveDir: filepath.Join(base, "live"),
		SSLDir:  filepath.Join(base, "ssl"),
	}

	_, err := activator.Activate(dummyCert("panel.example.com", "cert v1", "key v1"))
	assert.Ok(t, err)
	_, err = activator.Activate(dummyCert("panel.example.com", "cert v2", "key v2"))
	assert.Ok(t, err)

	content, err := os.ReadFile(filepath.Join(base, "ssl", "fullchain.pem"))
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "cert v2")

	key, err := os.ReadFile(filepath.Join(base, "ssl", "privkey.pem"))
	assert.Ok(t, err)
	assert.EqualString(t, string(key), "key v2")
}

func dummyCert(domain string, fullchain string, key string) *IssuedCertificate {
	return &IssuedCertificate{
		Domain:        domain,
		Mode:          ModeWebroot,
		FullchainPEM:  []byte(fullchain),
		PrivateKeyPEM: []byte(key),
		NotAfter:      time.Date(2026, 6, 14, 12, 0, 0, 0, time.UTC),
	}
}
