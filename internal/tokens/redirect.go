package tokens

import (
	"context"
	"errors"
)

// ErrManualEntry is returned by an AuthorizationCodeProvider when the user
// chose to type the tokens in by hand instead of logging in.
var ErrManualEntry = errors.New("tokens: manual token entry requested")

// AuthorizationCodeProvider supplies the redirect URL the user lands on after
// logging in at loginURL.
type AuthorizationCodeProvider interface {
	RedirectURL(ctx context.Context, loginURL string) (string, error)
}

// StaticRedirect is a redirect URL obtained ahead of time, for example from
// a flag or a previous run.
type StaticRedirect string

func (s StaticRedirect) RedirectURL(ctx context.Context, loginURL string) (string, error) {
	if s == "" {
		return "", errors.New("tokens: no redirect url configured")
	}
	return string(s), nil
}
