package tokens

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gopkg.in/h2non/gock.v1"

	"github.com/splatbot/nsoauth/internal/provider"
)

const (
	accountsURL    = "https://accounts.nintendo.test"
	accountsAPIURL = "https://api.accounts.nintendo.test"
	coralURL       = "https://coral.nintendo.test"
	splatNetURL    = "https://splatnet.nintendo.test"
	attestationURL = "https://f.example.test/f"
)

// PipelineTestSuite runs the service against the real provider clients with
// every upstream mocked at the HTTP level.
type PipelineTestSuite struct {
	suite.Suite

	service *Service
}

func TestPipeline(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func (ts *PipelineTestSuite) SetupTest() {
	gock.Off()

	rc := provider.RunContext{
		ClientID:             "71b963c1b7b6d119",
		RedirectURI:          "npf71b963c1b7b6d119://auth",
		Scope:                "openid user user.birthday user.mii user.screenName",
		AppVersion:           "2.6.0",
		OSVersion:            "Android/7.1.2",
		BrowserUserAgent:     "test-browser",
		WebViewVersion:       "4.0.0-22ddb0fd",
		AppUserAgent:         "test-webview",
		GameID:               4834290508791808,
		AttestationURL:       attestationURL,
		AttestationUserAgent: "nsoauth-test",
		Endpoints: provider.Endpoints{
			Accounts:    accountsURL,
			AccountsAPI: accountsAPIURL,
			Coral:       coralURL,
			SplatNet:    splatNetURL,
		},
	}

	jar, err := cookiejar.New(nil)
	require.NoError(ts.T(), err)
	session := &http.Client{Jar: jar}
	client := &http.Client{}

	ts.service = NewService(
		provider.NewNintendoAccount(rc, session, client),
		provider.NewAttestation(rc, client),
		provider.NewCoral(rc, client),
		provider.NewSplatNet(rc, client),
	)
}

func (ts *PipelineTestSuite) TearDownTest() {
	assert.True(ts.T(), gock.IsDone(), "pending mocks: %d", len(gock.Pending()))
	gock.Off()
}

func (ts *PipelineTestSuite) mockIdentity() {
	gock.New(accountsURL).
		Post("/connect/1.0.0/api/token").
		Reply(http.StatusOK).
		JSON(map[string]any{"access_token": "account-at", "id_token": "abc"})
	gock.New(accountsAPIURL).
		Get("/2.0.0/users/me").
		Reply(http.StatusOK).
		JSON(map[string]any{"id": "123", "nickname": "Inkling", "language": "en-US", "country": "US", "birthday": "1990-01-01"})
}

func (ts *PipelineTestSuite) mockAttestation(step int, body map[string]any, f, requestID string, timestamp int64) {
	expected := map[string]any{"token": body["token"], "hash_method": step, "na_id": "123"}
	if v, ok := body["coral_user_id"]; ok {
		expected["coral_user_id"] = v
	}
	gock.New(attestationURL).
		Post("").
		MatchHeader("Content-Type", "application/json; charset=utf-8").
		JSON(expected).
		Reply(http.StatusOK).
		JSON(map[string]any{"f": f, "request_id": requestID, "timestamp": timestamp})
}

func (ts *PipelineTestSuite) mockGameLoginSuccess() {
	gock.New(coralURL).
		Post("/v3/Account/Login").
		Reply(http.StatusOK).
		JSON(map[string]any{"status": 0, "result": map[string]any{
			"user":                   map[string]any{"id": 55},
			"webApiServerCredential": map[string]any{"accessToken": "AT1"},
		}})
}

func (ts *PipelineTestSuite) mockWebServiceTokenSuccess() {
	gock.New(coralURL).
		Post("/v2/Game/GetWebServiceToken").
		MatchHeader("Authorization", "Bearer AT1").
		Reply(http.StatusOK).
		JSON(map[string]any{"status": 0, "result": map[string]any{"accessToken": "WST1"}})
}

func (ts *PipelineTestSuite) TestHappyPath() {
	gock.New(accountsURL).
		Get("/connect/1.0.0/authorize").
		Reply(http.StatusFound).
		SetHeader("Location", accountsURL+"/login")
	gock.New(accountsURL).
		Post("/connect/1.0.0/api/session_token").
		Reply(http.StatusOK).
		JSON(map[string]string{"session_token": "ST1"})
	ts.mockIdentity()
	ts.mockAttestation(1, map[string]any{"token": "abc"}, "X", "R1", 111)
	ts.mockGameLoginSuccess()
	ts.mockAttestation(2, map[string]any{"token": "AT1", "coral_user_id": "55"}, "Y", "R2", 222)
	ts.mockWebServiceTokenSuccess()
	gock.New(splatNetURL).
		Post("/api/bullet_tokens").
		MatchHeader("Cookie", "_gtoken=WST1").
		Reply(http.StatusCreated).
		JSON(map[string]string{"bulletToken": "BT1"})

	var shownURL string
	creds, err := ts.service.Run(context.Background(), redirectFunc(func(_ context.Context, loginURL string) (string, error) {
		shownURL = loginURL
		return "npf71b963c1b7b6d119://auth#session_state=s&session_token_code=CODE123&state=x", nil
	}))
	require.NoError(ts.T(), err)

	assert.Contains(ts.T(), shownURL, accountsURL+"/connect/1.0.0/authorize?")
	assert.Equal(ts.T(), &Credentials{
		SessionToken:    "ST1",
		WebServiceToken: "WST1",
		BulletToken:     "BT1",
		Nickname:        "Inkling",
		Language:        "en-US",
		Country:         "US",
	}, creds)
}

func (ts *PipelineTestSuite) TestGameLoginRetry() {
	ts.mockIdentity()
	ts.mockAttestation(1, map[string]any{"token": "abc"}, "X", "R1", 111)
	gock.New(coralURL).
		Post("/v3/Account/Login").
		Reply(http.StatusOK).
		JSON(map[string]any{"status": 9403, "errorMessage": "Invalid token."})
	ts.mockAttestation(1, map[string]any{"token": "abc"}, "X2", "R1b", 112)
	ts.mockGameLoginSuccess()
	ts.mockAttestation(2, map[string]any{"token": "AT1", "coral_user_id": "55"}, "Y", "R2", 222)
	ts.mockWebServiceTokenSuccess()

	gwt, err := ts.service.GameWebToken(context.Background(), "ST1")
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), "WST1", gwt.WebServiceToken)
}

func (ts *PipelineTestSuite) TestWebServiceTokenFailsTwice() {
	ts.mockIdentity()
	ts.mockAttestation(1, map[string]any{"token": "abc"}, "X", "R1", 111)
	ts.mockGameLoginSuccess()
	for i := 0; i < 2; i++ {
		ts.mockAttestation(2, map[string]any{"token": "AT1", "coral_user_id": "55"}, "Y", "R2", 222)
		gock.New(coralURL).
			Post("/v2/Game/GetWebServiceToken").
			Reply(http.StatusOK).
			JSON(map[string]any{"status": 9599, "errorMessage": "Unknown error."})
	}

	_, err := ts.service.Acquire(context.Background(), "ST1")
	require.Error(ts.T(), err)
	assert.ErrorIs(ts.T(), err, provider.ErrProtocol)
}

func (ts *PipelineTestSuite) TestObsoleteVersion() {
	gock.New(splatNetURL).
		Post("/api/bullet_tokens").
		Reply(http.StatusForbidden)

	_, err := ts.service.BulletToken(context.Background(), &GameWebToken{WebServiceToken: "WST1", Language: "en-US", Country: "US"})
	assert.ErrorIs(ts.T(), err, provider.ErrObsoleteVersion)
}
