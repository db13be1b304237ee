package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	defer os.Clearenv()
	os.Exit(m.Run())
}

func TestGlobalDefaults(t *testing.T) {
	os.Clearenv()

	gc, err := LoadGlobal("")
	require.NoError(t, err)
	require.NotNil(t, gc)

	assert.Equal(t, "71b963c1b7b6d119", gc.Nintendo.ClientID)
	assert.Equal(t, "npf71b963c1b7b6d119://auth", gc.Nintendo.RedirectURI)
	assert.Equal(t, "openid user user.birthday user.mii user.screenName", gc.Nintendo.Scopes)
	assert.Equal(t, "https://api.imink.app/f", gc.Attestation.URL)
	assert.Equal(t, int64(4834290508791808), gc.SplatNet.GameID)
	assert.Equal(t, 30*time.Second, gc.HTTP.Timeout)
	assert.Equal(t, "nsoauth", gc.Tracing.ServiceName)
	assert.True(t, gc.SplatNet.DiscoverWebViewVersion)
}

func TestGlobalFromEnvironment(t *testing.T) {
	os.Clearenv()
	os.Setenv("NSOAUTH_ATTESTATION_URL", "https://f.example.com/api/f")
	os.Setenv("NSOAUTH_HTTP_TIMEOUT", "5s")
	os.Setenv("NSOAUTH_SPLATNET_WEB_VIEW_VERSION", "6.0.0-abcdef12")
	os.Setenv("NSOAUTH_NINTENDO_CORAL_URL", "https://coral.example.com/")
	os.Setenv("NSOAUTH_LOG_LEVEL", "debug")

	gc, err := LoadGlobal("")
	require.NoError(t, err)

	assert.Equal(t, "https://f.example.com/api/f", gc.Attestation.URL)
	assert.Equal(t, 5*time.Second, gc.HTTP.Timeout)
	assert.Equal(t, "6.0.0-abcdef12", gc.SplatNet.WebViewVersion)
	assert.Equal(t, "https://coral.example.com", gc.Nintendo.CoralURL)
	assert.Equal(t, "debug", gc.Logging.Level)
}

func TestGlobalFromDotenvFile(t *testing.T) {
	os.Clearenv()

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("NSOAUTH_ATTESTATION_RATE_LIMIT=2\nNSOAUTH_NINTENDO_APP_VERSION=2.7.0\n"), 0600))

	gc, err := LoadGlobal(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, gc.Attestation.RateLimit.Events)
	assert.Equal(t, 1, gc.Attestation.RateLimit.Burst())
	assert.Equal(t, "2.7.0", gc.Nintendo.AppVersion)
}

func TestGlobalValidation(t *testing.T) {
	cases := []struct {
		desc string
		env  map[string]string
	}{
		{
			desc: "attestation url without scheme",
			env:  map[string]string{"NSOAUTH_ATTESTATION_URL": "imink.app/f"},
		},
		{
			desc: "negative attestation rate limit",
			env:  map[string]string{"NSOAUTH_ATTESTATION_RATE_LIMIT": "-1"},
		},
		{
			desc: "unknown log level",
			env:  map[string]string{"NSOAUTH_LOG_LEVEL": "loud"},
		},
		{
			desc: "non-positive game id",
			env:  map[string]string{"NSOAUTH_SPLATNET_GAME_ID": "0"},
		},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			os.Clearenv()
			for k, v := range c.env {
				os.Setenv(k, v)
			}

			_, err := LoadGlobal("")
			require.Error(t, err)
		})
	}
}
