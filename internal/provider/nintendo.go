package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/splatbot/nsoauth/internal/security"
)

const (
	authorizePath    = "/connect/1.0.0/authorize"
	sessionTokenPath = "/connect/1.0.0/api/session_token"
	tokenPath        = "/connect/1.0.0/api/token"
	userInfoPath     = "/2.0.0/users/me"

	sessionTokenGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer-session-token"

	expiredAuthorizationMessage = "The URL has expired. Please log out and back into your Nintendo Account and try again."
)

var errStopRedirect = errors.New("redirect captured")

// AccountID is a Nintendo Account user id. The upstream has been seen to
// send it both as a JSON string and as a number.
type AccountID string

func (id *AccountID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = AccountID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = AccountID(n.String())
	return nil
}

// IdentityBundle is the result of the identity exchange.
type IdentityBundle struct {
	IDToken     string
	AccessToken string
	Nickname    string
	Language    string
	Country     string
	Birthday    string
	UserID      AccountID
}

type sessionTokenResponse struct {
	SessionToken string `json:"session_token"`
	Code         string `json:"code"`
}

type idTokenRequest struct {
	ClientID     string `json:"client_id"`
	SessionToken string `json:"session_token"`
	GrantType    string `json:"grant_type"`
}

type idTokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type userInfo struct {
	ID       AccountID `json:"id"`
	Nickname string    `json:"nickname"`
	Language string    `json:"language"`
	Country  string    `json:"country"`
	Birthday string    `json:"birthday"`
}

// NintendoAccount talks to the Nintendo Account authorization server and
// user API.
type NintendoAccount struct {
	rc      RunContext
	session *http.Client
	client  *http.Client
}

// NewNintendoAccount creates a Nintendo Account client. The session client
// must carry the cookie jar used for the authorize and session token steps.
func NewNintendoAccount(rc RunContext, session, client *http.Client) *NintendoAccount {
	return &NintendoAccount{rc: rc, session: session, client: client}
}

func (n *NintendoAccount) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    n.rc.ClientID,
		RedirectURL: n.rc.RedirectURI,
		Scopes:      strings.Fields(n.rc.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL: n.rc.Endpoints.Accounts + authorizePath,
		},
	}
}

// AuthorizeURL builds the authorize request URL for the challenge without
// sending it.
func (n *NintendoAccount) AuthorizeURL(ch *security.AuthChallenge) string {
	return n.oauthConfig().AuthCodeURL(ch.State,
		oauth2.SetAuthURLParam("response_type", "session_token_code"),
		oauth2.SetAuthURLParam("session_token_code_challenge", ch.CodeChallenge),
		oauth2.SetAuthURLParam("session_token_code_challenge_method", security.CodeChallengeMethod),
		oauth2.SetAuthURLParam("theme", "login_form"),
	)
}

// AuthorizationURL issues the authorize request on the session client and
// returns the URL of the first hop of the redirect chain. That is the login
// page the user has to open.
func (n *NintendoAccount) AuthorizationURL(ctx context.Context, ch *security.AuthChallenge) (string, error) {
	target := n.AuthorizeURL(ch)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("User-Agent", n.rc.BrowserUserAgent)
	req.Header.Set("X-Requested-With", "com.nintendo.znca")

	// Only the first hop is needed. Stop there so the session keeps its
	// cookies and no further pages are fetched.
	var firstHop string
	client := *n.session
	client.CheckRedirect = func(r *http.Request, via []*http.Request) error {
		if firstHop == "" && len(via) > 0 {
			firstHop = via[0].URL.String()
		}
		return errStopRedirect
	}

	resp, err := client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil && !errors.Is(err, errStopRedirect) {
		return "", networkError(StageAuthorize, req.URL.Host, err)
	}

	if firstHop == "" {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return "", protocolError(StageAuthorize, ErrorCodeNoRedirect, "authorize request did not redirect").WithStatus(status)
	}

	logEntry(ctx, StageAuthorize).Debug("obtained login url")
	return firstHop, nil
}

// ExtractSessionTokenCode pulls session_token_code out of the redirect URL the
// user copied from the login page.
func ExtractSessionTokenCode(redirectURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(redirectURL))
	if err != nil {
		return "", authRejected(StageAuthorize, ErrorCodeMalformedRedirect, "redirect url could not be parsed").WithInternalError(err)
	}

	for _, raw := range []string{u.Fragment, u.RawQuery} {
		values, err := url.ParseQuery(raw)
		if err != nil {
			continue
		}
		if code := values.Get("session_token_code"); code != "" {
			return code, nil
		}
	}

	return "", authRejected(StageAuthorize, ErrorCodeMalformedRedirect, "redirect url does not contain a session_token_code")
}

// SessionToken exchanges the session token code for a long lived session token.
func (n *NintendoAccount) SessionToken(ctx context.Context, code, verifier string) (string, error) {
	form := url.Values{
		"client_id":                   {n.rc.ClientID},
		"session_token_code":          {code},
		"session_token_code_verifier": {verifier},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.rc.Endpoints.Accounts+sessionTokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", n.rc.AccountsUserAgent())

	_, body, err := send(n.session, req, StageSessionToken)
	if err != nil {
		return "", err
	}

	var out sessionTokenResponse
	if err := json.Unmarshal(body, &out); err != nil || out.SessionToken == "" {
		e := protocolError(StageSessionToken, ErrorCodeAuthorizationExpired, expiredAuthorizationMessage).WithPayload(body)
		if err != nil {
			e = e.WithInternalError(err)
		}
		logEntry(ctx, StageSessionToken).Warn(e.Message)
		return "", e
	}

	return out.SessionToken, nil
}

// Identity exchanges a session token for an id token and access token, then
// reads the account profile with the access token.
func (n *NintendoAccount) Identity(ctx context.Context, sessionToken string) (*IdentityBundle, error) {
	tokens, raw, err := n.idToken(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	profile, rawProfile, err := n.userInfo(ctx, tokens.AccessToken)
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) && perr.Kind == KindProtocol {
			logIdentityFailure(ctx, raw, rawProfile)
		}
		return nil, err
	}

	return &IdentityBundle{
		IDToken:     tokens.IDToken,
		AccessToken: tokens.AccessToken,
		Nickname:    profile.Nickname,
		Language:    profile.Language,
		Country:     profile.Country,
		Birthday:    profile.Birthday,
		UserID:      profile.ID,
	}, nil
}

func (n *NintendoAccount) idToken(ctx context.Context, sessionToken string) (*idTokenResponse, []byte, error) {
	req, err := newJSONRequest(ctx, http.MethodPost, n.rc.Endpoints.Accounts+tokenPath, idTokenRequest{
		ClientID:     n.rc.ClientID,
		SessionToken: sessionToken,
		GrantType:    sessionTokenGrantType,
	})
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", n.rc.AccountsUserAgent())

	_, body, err := send(n.client, req, StageIdentity)
	if err != nil {
		return nil, nil, err
	}

	var out idTokenResponse
	if perr := decodeJSON(StageIdentity, body, &out); perr != nil {
		logIdentityFailure(ctx, body, nil)
		return nil, body, perr
	}
	if out.AccessToken == "" || out.IDToken == "" {
		logIdentityFailure(ctx, body, nil)
		return nil, body, protocolError(StageIdentity, ErrorCodeMissingFields, "token response is missing access_token or id_token").WithPayload(body)
	}

	return &out, body, nil
}

func (n *NintendoAccount) userInfo(ctx context.Context, accessToken string) (*userInfo, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.rc.Endpoints.AccountsAPI+userInfoPath, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", "NASDKAPI; Android")

	resp, body, err := send(n.client, req, StageIdentity)
	if err != nil {
		return nil, nil, err
	}

	if !isSuccess(resp.StatusCode) {
		return nil, body, protocolError(StageIdentity, ErrorCodeUnexpectedStatus, "user profile request returned status %d", resp.StatusCode).
			WithStatus(resp.StatusCode).
			WithPayload(body)
	}

	var out userInfo
	if perr := decodeJSON(StageIdentity, body, &out); perr != nil {
		return nil, body, perr
	}
	if out.ID == "" || out.Language == "" || out.Country == "" || out.Birthday == "" {
		return nil, body, protocolError(StageIdentity, ErrorCodeMissingFields, "user profile is missing required fields").WithPayload(body)
	}

	return &out, body, nil
}

func logIdentityFailure(ctx context.Context, tokenBody, profileBody []byte) {
	log := logEntry(ctx, StageIdentity)
	log.Warn("Not a valid authorization request. A fresh login is required.")
	if tokenBody != nil {
		log.Warnf("Error from Nintendo (in api/token step):\n%s", prettyPayload(tokenBody))
	}
	if profileBody != nil {
		log.Warnf("Error from Nintendo (in users/me step):\n%s", prettyPayload(profileBody))
	}
}
