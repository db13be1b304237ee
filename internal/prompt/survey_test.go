package prompt

import (
	"bytes"
	"context"
	"testing"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splatbot/nsoauth/internal/provider"
	"github.com/splatbot/nsoauth/internal/tokens"
)

func withAnswer(t *testing.T, answer string, err error) {
	original := askOne
	askOne = func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error {
		if err != nil {
			return err
		}
		*(response.(*string)) = answer
		return nil
	}
	t.Cleanup(func() { askOne = original })
}

func TestRedirectURL(t *testing.T) {
	redirect := "npf71b963c1b7b6d119://auth#session_token_code=CODE123&state=s"
	withAnswer(t, "  "+redirect+"  ", nil)

	var out bytes.Buffer
	got, err := (&Survey{Out: &out}).RedirectURL(context.Background(), "https://accounts.example/login")
	require.NoError(t, err)
	assert.Equal(t, redirect, got)
	assert.Contains(t, out.String(), "https://accounts.example/login")
	assert.Contains(t, out.String(), `"skip"`)
}

func TestRedirectURLSkip(t *testing.T) {
	withAnswer(t, "SKIP", nil)

	_, err := (&Survey{Out: &bytes.Buffer{}}).RedirectURL(context.Background(), "https://accounts.example/login")
	assert.ErrorIs(t, err, tokens.ErrManualEntry)
}

func TestRedirectURLInterrupted(t *testing.T) {
	withAnswer(t, "", terminal.InterruptErr)

	_, err := (&Survey{Out: &bytes.Buffer{}}).RedirectURL(context.Background(), "https://accounts.example/login")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrUserAbort)
	assert.ErrorIs(t, err, terminal.InterruptErr)
}

func TestAskInterrupted(t *testing.T) {
	withAnswer(t, "", terminal.InterruptErr)

	_, err := (&Survey{}).Ask(context.Background(), "Enter your gtoken:")
	assert.ErrorIs(t, err, provider.ErrUserAbort)
}

func TestAskCancelledContext(t *testing.T) {
	withAnswer(t, "never", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Survey{}).Ask(ctx, "Enter your gtoken:")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, provider.ErrUserAbort)

	_, err = (&Survey{}).RedirectURL(ctx, "https://accounts.example/login")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, provider.ErrUserAbort)
}

func TestValidateRedirect(t *testing.T) {
	assert.NoError(t, validateRedirect("skip"))
	assert.NoError(t, validateRedirect("npf71b963c1b7b6d119://auth#session_token_code=C&state=s"))
	assert.Error(t, validateRedirect("https://accounts.nintendo.com/"))
	assert.Error(t, validateRedirect(42))
}
