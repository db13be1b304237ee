package provider

import (
	"context"
	"fmt"
	"net/http"
)

const (
	gameLoginPath       = "/v3/Account/Login"
	webServiceTokenPath = "/v2/Game/GetWebServiceToken"
)

// GameCredential is the Coral session obtained from the game login exchange.
type GameCredential struct {
	AccessToken string
	CoralUserID int64
}

type gameLoginParameter struct {
	F          string `json:"f"`
	Language   string `json:"language"`
	NaBirthday string `json:"naBirthday"`
	NaCountry  string `json:"naCountry"`
	NaIDToken  string `json:"naIdToken"`
	RequestID  string `json:"requestId"`
	Timestamp  int64  `json:"timestamp"`
}

type webServiceTokenParameter struct {
	F                 string `json:"f"`
	ID                int64  `json:"id"`
	RegistrationToken string `json:"registrationToken"`
	RequestID         string `json:"requestId"`
	Timestamp         int64  `json:"timestamp"`
}

type coralRequest[T any] struct {
	Parameter T `json:"parameter"`
}

// coralStatus is the vendor status Coral reports alongside the result,
// e.g. 9403 or 9599 for a rejected f token.
type coralStatus struct {
	Status       int    `json:"status"`
	ErrorMessage string `json:"errorMessage"`
}

type gameLoginResponse struct {
	coralStatus
	Result *struct {
		WebAPIServerCredential *struct {
			AccessToken string `json:"accessToken"`
		} `json:"webApiServerCredential"`
		User *struct {
			ID int64 `json:"id"`
		} `json:"user"`
	} `json:"result"`
}

type webServiceTokenResponse struct {
	coralStatus
	Result *struct {
		AccessToken string `json:"accessToken"`
	} `json:"result"`
}

// Coral is a client for the Nintendo Switch Online app API.
type Coral struct {
	rc     RunContext
	client *http.Client
}

func NewCoral(rc RunContext, client *http.Client) *Coral {
	return &Coral{rc: rc, client: client}
}

func (c *Coral) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	req, err := newJSONRequest(ctx, http.MethodPost, c.rc.Endpoints.Coral+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Platform", "Android")
	req.Header.Set("X-ProductVersion", c.rc.AppVersion)
	req.Header.Set("User-Agent", c.rc.CoralUserAgent())
	return req, nil
}

// GameLogin exchanges the identity and a step 1 F token for a game credential.
// Any unusable response is a protocol error carrying the raw body.
func (c *Coral) GameLogin(ctx context.Context, identity *IdentityBundle, ft *FToken) (*GameCredential, error) {
	if ft.Step != StepGameLogin {
		return nil, fmt.Errorf("coral: game login requires a step %d f token, got step %d", StepGameLogin, ft.Step)
	}

	req, err := c.newRequest(ctx, gameLoginPath, coralRequest[gameLoginParameter]{
		Parameter: gameLoginParameter{
			F:          ft.F,
			Language:   identity.Language,
			NaBirthday: identity.Birthday,
			NaCountry:  identity.Country,
			NaIDToken:  identity.IDToken,
			RequestID:  ft.RequestID,
			Timestamp:  ft.Timestamp,
		},
	})
	if err != nil {
		return nil, err
	}

	resp, raw, err := send(c.client, req, StageGameLogin)
	if err != nil {
		return nil, err
	}

	var out gameLoginResponse
	if perr := decodeJSON(StageGameLogin, raw, &out); perr != nil {
		return nil, perr.WithStatus(resp.StatusCode)
	}

	if out.Result == nil || out.Result.WebAPIServerCredential == nil || out.Result.WebAPIServerCredential.AccessToken == "" ||
		out.Result.User == nil || out.Result.User.ID == 0 {
		logVendorStatus(ctx, StageGameLogin, out.coralStatus)
		return nil, protocolError(StageGameLogin, ErrorCodeMissingFields, "game login response has no credential").
			WithStatus(resp.StatusCode).
			WithPayload(raw)
	}

	return &GameCredential{
		AccessToken: out.Result.WebAPIServerCredential.AccessToken,
		CoralUserID: out.Result.User.ID,
	}, nil
}

// WebServiceToken exchanges a game credential and a step 2 F token for the
// SplatNet web service token.
func (c *Coral) WebServiceToken(ctx context.Context, cred *GameCredential, ft *FToken) (string, error) {
	if ft.Step != StepWebServiceToken {
		return "", fmt.Errorf("coral: web service token requires a step %d f token, got step %d", StepWebServiceToken, ft.Step)
	}

	req, err := c.newRequest(ctx, webServiceTokenPath, coralRequest[webServiceTokenParameter]{
		Parameter: webServiceTokenParameter{
			F:                 ft.F,
			ID:                c.rc.GameID,
			RegistrationToken: cred.AccessToken,
			RequestID:         ft.RequestID,
			Timestamp:         ft.Timestamp,
		},
	})
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, raw, err := send(c.client, req, StageWebServiceToken)
	if err != nil {
		return "", err
	}

	var out webServiceTokenResponse
	if perr := decodeJSON(StageWebServiceToken, raw, &out); perr != nil {
		return "", perr.WithStatus(resp.StatusCode)
	}

	if out.Result == nil || out.Result.AccessToken == "" {
		logVendorStatus(ctx, StageWebServiceToken, out.coralStatus)
		return "", protocolError(StageWebServiceToken, ErrorCodeMissingFields, "web service token response has no access token").
			WithStatus(resp.StatusCode).
			WithPayload(raw)
	}

	return out.Result.AccessToken, nil
}

func logVendorStatus(ctx context.Context, stage Stage, s coralStatus) {
	if s.Status == 0 {
		return
	}
	logEntry(ctx, stage).WithField("vendor_status", s.Status).Infof("coral rejected the request: %s", s.ErrorMessage)
}
