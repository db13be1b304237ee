// Package prompt asks the user for input on the terminal.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/splatbot/nsoauth/internal/provider"
	"github.com/splatbot/nsoauth/internal/tokens"
)

// SkipAnswer switches from the login to manual token entry.
const SkipAnswer = "skip"

var askOne = survey.AskOne

// Survey is an interactive terminal prompt. It implements both
// tokens.AuthorizationCodeProvider and tokens.Prompter.
type Survey struct {
	Out io.Writer
}

func (s *Survey) out() io.Writer {
	if s.Out == nil {
		return os.Stderr
	}
	return s.Out
}

// RedirectURL shows the login URL and reads back the redirect URL the user
// copied from the "Select this account" button.
func (s *Survey) RedirectURL(ctx context.Context, loginURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", provider.UserAbort(provider.StageAuthorize, err)
	}

	fmt.Fprintf(s.out(), "\nNavigate to this URL in your browser:\n%s\n\n", loginURL)
	fmt.Fprintf(s.out(), "Log in, right click the \"Select this account\" button, copy the link address, and paste it below.\n")
	fmt.Fprintf(s.out(), "To enter the tokens by hand instead, type %q.\n\n", SkipAnswer)

	var answer string
	err := askOne(&survey.Input{Message: "Redirect URL:"}, &answer, stdio(), survey.WithValidator(validateRedirect))
	if err != nil {
		return "", interrupted(provider.StageAuthorize, err)
	}

	answer = strings.TrimSpace(answer)
	if isSkip(answer) {
		return "", tokens.ErrManualEntry
	}
	return answer, nil
}

// Ask reads a single line.
func (s *Survey) Ask(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", provider.UserAbort(provider.StageManualEntry, err)
	}

	var answer string
	if err := askOne(&survey.Input{Message: message}, &answer, stdio()); err != nil {
		return "", interrupted(provider.StageManualEntry, err)
	}
	return answer, nil
}

// stdio keeps prompts on stderr so stdout carries only the result.
func stdio() survey.AskOpt {
	return survey.WithStdio(os.Stdin, os.Stderr, os.Stderr)
}

func isSkip(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), SkipAnswer)
}

func validateRedirect(ans interface{}) error {
	s, ok := ans.(string)
	if !ok {
		return errors.New("expected text")
	}
	if isSkip(s) {
		return nil
	}
	if _, err := provider.ExtractSessionTokenCode(s); err != nil {
		return errors.New("that link does not contain a session_token_code, copy the link address of the \"Select this account\" button")
	}
	return nil
}

func interrupted(stage provider.Stage, err error) error {
	if errors.Is(err, terminal.InterruptErr) || errors.Is(err, io.EOF) {
		return provider.UserAbort(stage, err)
	}
	return err
}
