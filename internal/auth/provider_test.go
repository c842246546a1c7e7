// ABOUTME: Tests for TokenProvider implementations.
// ABOUTME: Validates env/file precedence and that rotation is picked up on the next call.

package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticToken(t *testing.T) {
	p := Static("abc123")
	assert.Equal(t, "abc123", p.Token())
}

func TestFileProviderEnvWins(t *testing.T) {
	t.Setenv("KUNJAL_TEST_TOKEN", "from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0600))

	p := &FileProvider{EnvVar: "KUNJAL_TEST_TOKEN", Path: path}
	assert.Equal(t, "from-env", p.Token())
}

func TestFileProviderFallsBackToFile(t *testing.T) {
	t.Setenv("KUNJAL_TEST_TOKEN", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(path, []byte("  from-file\n"), 0600))

	p := &FileProvider{EnvVar: "KUNJAL_TEST_TOKEN", Path: path}
	assert.Equal(t, "from-file", p.Token())
}

func TestFileProviderReadsFreshOnEveryCall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0600))

	p := &FileProvider{Path: path}
	assert.Equal(t, "first", p.Token())

	// Rotate the credential on disk; the next call must see it.
	require.NoError(t, os.WriteFile(path, []byte("second"), 0600))
	assert.Equal(t, "second", p.Token())
}

func TestFileProviderMissingSources(t *testing.T) {
	p := &FileProvider{EnvVar: "KUNJAL_DOES_NOT_EXIST", Path: filepath.Join(t.TempDir(), "nope")}
	assert.Empty(t, p.Token())
}
