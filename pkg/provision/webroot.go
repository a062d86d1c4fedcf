package provision

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-acme/lego/v4/challenge"
)

// presents an ACME challenge token by writing it under the reverse proxy's
// shared webroot, so validation is served without stopping the proxy
type webrootChallengeWriter struct {
	webrootPath string
}

var _ challenge.Provider = (*webrootChallengeWriter)(nil)

func (w *webrootChallengeWriter) Present(domain string, token string, keyAuth string) error {
	// once we've written the file and returned "ok" to our caller, ACME servers
	// will send a request to
	// http://DOMAIN_TO_VALIDATE/.well-known/acme-challenge/TOKEN
	dir := filepath.Join(w.webrootPath, ".well-known", "acme-challenge")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("webroot challenge: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, token), []byte(keyAuth), 0644)
}

func (w *webrootChallengeWriter) CleanUp(domain string, token string, keyAuth string) error {
	return os.Remove(filepath.Join(w.webrootPath, ".well-known", "acme-challenge", token))
}
