// ABOUTME: TokenProvider implementations for supplying bearer credentials on outgoing calls.
// ABOUTME: Tokens are read fresh on every call so rotation takes effect immediately.

package auth

import (
	"os"
	"path/filepath"
	"strings"
)

// TokenProvider supplies the bearer token for authenticated requests.
// Implementations must return the current token on every call rather than
// caching: a rotated credential has to be picked up by the very next request.
// An empty return means "no credential" and callers omit the Authorization
// header.
type TokenProvider interface {
	Token() string
}

// Static is a fixed token, useful for tests and one-off invocations.
type Static string

// Token returns the static token value.
func (s Static) Token() string { return string(s) }

// FileProvider reads the token from an environment variable, falling back to
// a token file. Both are consulted on every call.
type FileProvider struct {
	// EnvVar is checked first; if set and non-empty its value is the token.
	EnvVar string
	// Path is the token file read when EnvVar is unset. Leading and trailing
	// whitespace is trimmed.
	Path string
}

// Token returns the current token, or "" when neither source has one.
func (p *FileProvider) Token() string {
	if p.EnvVar != "" {
		if token := os.Getenv(p.EnvVar); token != "" {
			return token
		}
	}
	if p.Path == "" {
		return ""
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// DefaultTokenPath returns the conventional token file location:
// $XDG_CONFIG_HOME/kunjal/token, or ~/.config/kunjal/token.
func DefaultTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "kunjal", "token")
}
