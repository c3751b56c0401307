package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	// pkceVerifierBytes is the number of random bytes for the code verifier.
	// 32 bytes encode to 43 base64url characters, the RFC 7636 minimum.
	pkceVerifierBytes = 32

	// CodeChallengeMethodS256 is the only challenge method the portal accepts.
	CodeChallengeMethodS256 = "S256"

	minVerifierLength = 43
	maxVerifierLength = 128
)

// randReader is the entropy source; tests replace it to simulate failure.
var randReader io.Reader = rand.Reader

// PKCEPair holds the per-login proof key and the opaque state value.
type PKCEPair struct {
	Verifier  string
	Challenge string
	Method    string
	State     string
}

// GeneratePKCE creates a fresh verifier, its S256 challenge and a random
// state. An entropy failure is returned as an error.
func GeneratePKCE() (PKCEPair, error) {
	buf := make([]byte, pkceVerifierBytes)
	if _, err := io.ReadFull(randReader, buf); err != nil {
		return PKCEPair{}, fmt.Errorf("generating PKCE verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(buf)

	state, err := uuid.NewRandomFromReader(randReader)
	if err != nil {
		return PKCEPair{}, fmt.Errorf("generating state: %w", err)
	}

	return PKCEPair{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:    CodeChallengeMethodS256,
		State:     strings.ReplaceAll(state.String(), "-", ""),
	}, nil
}

// ValidateVerifier checks the RFC 7636 length and character set rules.
func ValidateVerifier(v string) error {
	if len(v) < minVerifierLength || len(v) > maxVerifierLength {
		return fmt.Errorf("%w: length %d not in [%d, %d]", ErrInvalidVerifier, len(v), minVerifierLength, maxVerifierLength)
	}
	for i := 0; i < len(v); i++ {
		if !isUnreserved(v[i]) {
			return fmt.Errorf("%w: invalid character %q at %d", ErrInvalidVerifier, v[i], i)
		}
	}
	return nil
}

// isUnreserved reports whether c is in the RFC 3986 unreserved set.
func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
