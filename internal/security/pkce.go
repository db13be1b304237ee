package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/oauth2"
)

const PKCEInvalidCodeChallengeError = "code challenge does not match previously saved code verifier"
const PKCEInvalidCodeMethodError = "code challenge method not supported"

const (
	// CodeChallengeMethod is the only method the Nintendo Account server accepts.
	CodeChallengeMethod = "S256"

	verifierBytes = 32
	stateBytes    = 36
)

// AuthChallenge is the PKCE material for a single login attempt. It must not
// be reused across attempts.
type AuthChallenge struct {
	State         string
	CodeVerifier  string
	CodeChallenge string
}

// NewAuthChallenge generates a fresh state, code verifier and S256 challenge.
func NewAuthChallenge() (*AuthChallenge, error) {
	return newAuthChallenge(rand.Reader)
}

func newAuthChallenge(r io.Reader) (*AuthChallenge, error) {
	state, err := secureToken(r, stateBytes)
	if err != nil {
		return nil, err
	}
	verifier, err := secureToken(r, verifierBytes)
	if err != nil {
		return nil, err
	}

	return &AuthChallenge{
		State:         state,
		CodeVerifier:  verifier,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
	}, nil
}

// secureToken returns n random bytes as unpadded url-safe base64.
func secureToken(r io.Reader, n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// VerifyPKCEChallenge checks that codeVerifier hashes to codeChallenge. Only
// S256 is supported, as it is the only method the login accepts.
func VerifyPKCEChallenge(codeChallenge, codeChallengeMethod, codeVerifier string) error {
	if !strings.EqualFold(codeChallengeMethod, CodeChallengeMethod) {
		return errors.New(PKCEInvalidCodeMethodError)
	}
	hashedCodeVerifier := sha256.Sum256([]byte(codeVerifier))
	encodedCodeVerifier := base64.RawURLEncoding.EncodeToString(hashedCodeVerifier[:])
	if subtle.ConstantTimeCompare([]byte(codeChallenge), []byte(encodedCodeVerifier)) != 1 {
		return errors.New(PKCEInvalidCodeChallengeError)
	}
	return nil
}
