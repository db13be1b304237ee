package tokens

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splatbot/nsoauth/internal/provider"
)

// scriptedPrompter answers prompts from a fixed list.
type scriptedPrompter struct {
	answers  []string
	messages []string
	err      error
}

func (p *scriptedPrompter) Ask(ctx context.Context, message string) (string, error) {
	p.messages = append(p.messages, message)
	if len(p.answers) == 0 {
		if p.err != nil {
			return "", p.err
		}
		return "", errors.New("no more answers")
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

func TestValidateGameWebToken(t *testing.T) {
	assert.True(t, ValidateGameWebToken(strings.Repeat("g", 926)))
	assert.False(t, ValidateGameWebToken(strings.Repeat("g", 925)))
	assert.False(t, ValidateGameWebToken(strings.Repeat("g", 927)))
	assert.False(t, ValidateGameWebToken(""))
}

func TestNormalizeBulletToken(t *testing.T) {
	cases := []struct {
		desc  string
		input string
		want  string
		ok    bool
	}{
		{desc: "exact length", input: strings.Repeat("b", 124), want: strings.Repeat("b", 124), ok: true},
		{desc: "missing padding", input: strings.Repeat("b", 123), want: strings.Repeat("b", 123) + "=", ok: true},
		{desc: "short but already padded", input: strings.Repeat("b", 122) + "=", ok: false},
		{desc: "too short", input: strings.Repeat("b", 122), ok: false},
		{desc: "too long", input: strings.Repeat("b", 125), ok: false},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			got, ok := NormalizeBulletToken(c.input)
			assert.Equal(t, c.ok, ok)
			assert.Equal(t, c.want, got)
			if ok {
				assert.Len(t, got, BulletTokenLength)
			}
		})
	}
}

func TestEnterTokens(t *testing.T) {
	gtoken := strings.Repeat("g", 926)
	bullet := strings.Repeat("b", 123)

	p := &scriptedPrompter{answers: []string{
		strings.Repeat("g", 925),
		strings.Repeat("g", 927),
		gtoken,
		strings.Repeat("b", 10),
		strings.Repeat("b", 122) + "=",
		bullet,
	}}

	gotG, gotB, err := EnterTokens(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, gtoken, gotG)
	assert.Equal(t, bullet+"=", gotB)

	require.Len(t, p.messages, 6)
	assert.Equal(t, "Enter your gtoken:", p.messages[0])
	assert.Contains(t, p.messages[1], "length should be 926")
	assert.Contains(t, p.messages[2], "length should be 926")
	assert.Equal(t, "Enter your bulletToken:", p.messages[3])
	assert.Contains(t, p.messages[4], "length should be 124")
}

func TestEnterTokensInterrupted(t *testing.T) {
	abort := provider.UserAbort(provider.StageManualEntry, errors.New("interrupt"))
	p := &scriptedPrompter{answers: []string{strings.Repeat("g", 926)}, err: abort}

	_, _, err := EnterTokens(context.Background(), p)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrUserAbort)
}
