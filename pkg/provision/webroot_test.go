package provision

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/function61/gokit/assert"
)

func TestWebrootChallengeWriter(t *testing.T) {
	webroot := t.TempDir()
	writer := &webrootChallengeWriter{webrootPath: webroot}

	assert.Ok(t, writer.Present("panel.example.com", "token123", "token123.keyauth"))

	challengeFile := filepath.Join(webroot, ".well-known", "acme-challenge", "token123")
	content, err := os.ReadFile(challengeFile)
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "token123.keyauth")

	assert.Ok(t, writer.CleanUp("panel.example.com", "token123", "token123.keyauth"))

	_, err = os.Stat(challengeFile)
	assert.Assert(t, os.IsNotExist(err))
}
