package security

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyPKCEChallenge(t *testing.T) {
	tests := []struct {
		name                string
		codeChallenge       string
		codeChallengeMethod string
		codeVerifier        string
		wantErr             bool
		errMsg              string
	}{
		{
			name:                "valid S256 PKCE",
			codeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", // S256 of "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
			codeChallengeMethod: "S256",
			codeVerifier:        "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk",
		},
		{
			name:                "invalid S256 verifier",
			codeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
			codeChallengeMethod: "S256",
			codeVerifier:        "wrong-verifier",
			wantErr:             true,
			errMsg:              "code challenge does not match",
		},
		{
			name:                "plain method rejected",
			codeChallenge:       "test-challenge",
			codeChallengeMethod: "plain",
			codeVerifier:        "test-challenge",
			wantErr:             true,
			errMsg:              "code challenge method not supported",
		},
		{
			name:                "invalid challenge method",
			codeChallenge:       "test-challenge",
			codeChallengeMethod: "invalid",
			codeVerifier:        "test-challenge",
			wantErr:             true,
			errMsg:              "code challenge method not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPKCEChallenge(tt.codeChallenge, tt.codeChallengeMethod, tt.codeVerifier)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewAuthChallengeMatchesVerifier(t *testing.T) {
	seen := map[string]bool{}

	for i := 0; i < 64; i++ {
		ch, err := NewAuthChallenge()
		require.NoError(t, err)

		sum := sha256.Sum256([]byte(ch.CodeVerifier))
		assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), ch.CodeChallenge)
		require.NoError(t, VerifyPKCEChallenge(ch.CodeChallenge, CodeChallengeMethod, ch.CodeVerifier))

		// 32 and 36 random bytes, unpadded
		assert.Len(t, ch.CodeVerifier, 43)
		assert.Len(t, ch.State, 48)
		for _, v := range []string{ch.State, ch.CodeVerifier, ch.CodeChallenge} {
			assert.NotContains(t, v, "=")
			assert.NotContains(t, v, "+")
			assert.NotContains(t, v, "/")
		}

		assert.False(t, seen[ch.CodeVerifier], "verifier reused")
		seen[ch.CodeVerifier] = true
	}
}

func TestNewAuthChallengeIsDeterministicForFixedInput(t *testing.T) {
	input := bytes.Repeat([]byte{0x01}, stateBytes+verifierBytes)

	a, err := newAuthChallenge(bytes.NewReader(input))
	require.NoError(t, err)
	b, err := newAuthChallenge(bytes.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(bytes.Repeat([]byte{0x01}, verifierBytes)), a.CodeVerifier)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestNewAuthChallengeReportsEntropyFailure(t *testing.T) {
	_, err := newAuthChallenge(failingReader{})
	require.Error(t, err)

	_, err = newAuthChallenge(strings.NewReader("short"))
	require.Error(t, err)
}
