package tokens

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// GameWebTokenLength is the exact length of a valid gtoken.
	GameWebTokenLength = 926
	// BulletTokenLength is the exact length of a valid bullet token.
	BulletTokenLength = 124

	// ManualEntryInstructions tells the user where the tokens can be found.
	ManualEntryInstructions = "Go to the page below to find instructions to obtain your gtoken and bulletToken:\nhttps://github.com/frozenpandaman/s3s/wiki/mitmproxy-instructions"
)

// Prompter reads one line of input from the user. It returns an error
// wrapping provider.ErrUserAbort when the user interrupts.
type Prompter interface {
	Ask(ctx context.Context, message string) (string, error)
}

// ValidateGameWebToken reports whether s has the length of a gtoken.
func ValidateGameWebToken(s string) bool {
	return len(s) == GameWebTokenLength
}

// NormalizeBulletToken accepts a bullet token of the right length. A token
// exactly one character short whose last character is not "=" had its
// padding dropped and gets it back. Anything else is rejected.
func NormalizeBulletToken(s string) (string, bool) {
	switch {
	case len(s) == BulletTokenLength:
		return s, true
	case len(s) == BulletTokenLength-1 && !strings.HasSuffix(s, "="):
		return s + "=", true
	default:
		return "", false
	}
}

// EnterTokens asks for a gtoken and a bullet token until both are valid.
func EnterTokens(ctx context.Context, p Prompter) (gtoken string, bulletToken string, err error) {
	message := "Enter your gtoken:"
	for {
		gtoken, err = p.Ask(ctx, message)
		if err != nil {
			return "", "", err
		}
		gtoken = strings.TrimSpace(gtoken)
		if ValidateGameWebToken(gtoken) {
			break
		}
		logrus.WithField("length", len(gtoken)).Debug("rejected gtoken")
		message = fmt.Sprintf("Invalid token - length should be %d characters. Try again.\nEnter your gtoken:", GameWebTokenLength)
	}

	message = "Enter your bulletToken:"
	for {
		input, err := p.Ask(ctx, message)
		if err != nil {
			return "", "", err
		}
		if bt, ok := NormalizeBulletToken(strings.TrimSpace(input)); ok {
			return gtoken, bt, nil
		}
		logrus.WithField("length", len(strings.TrimSpace(input))).Debug("rejected bullet token")
		message = fmt.Sprintf("Invalid token - length should be %d characters. Try again.\nEnter your bulletToken:", BulletTokenLength)
	}
}
