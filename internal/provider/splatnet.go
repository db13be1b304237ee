package provider

import (
	"context"
	"net/http"
)

const bulletTokensPath = "/api/bullet_tokens"

// BulletRequest carries what the bullet token endpoint needs besides the
// run context.
type BulletRequest struct {
	WebServiceToken string
	Language        string
	Country         string
}

type bulletTokenResponse struct {
	BulletToken  string `json:"bulletToken"`
	Lang         string `json:"lang"`
	IsNOECountry bool   `json:"is_noe_country"`
}

// SplatNet is a client for the SplatNet 3 web service.
type SplatNet struct {
	rc     RunContext
	client *http.Client
}

func NewSplatNet(rc RunContext, client *http.Client) *SplatNet {
	return &SplatNet{rc: rc, client: client}
}

// BulletToken exchanges a web service token for a bullet token.
func (s *SplatNet) BulletToken(ctx context.Context, in BulletRequest) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.rc.Endpoints.SplatNet+bulletTokensPath, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", in.Language)
	req.Header.Set("User-Agent", s.rc.AppUserAgent)
	req.Header.Set("X-Web-View-Ver", s.rc.WebViewVersion)
	req.Header.Set("X-NACOUNTRY", in.Country)
	req.Header.Set("Origin", s.rc.Endpoints.SplatNet)
	req.Header.Set("X-Requested-With", "com.nintendo.znca")
	req.AddCookie(&http.Cookie{Name: "_gtoken", Value: in.WebServiceToken})

	resp, raw, err := send(s.client, req, StageBulletToken)
	if err != nil {
		return "", err
	}

	log := logEntry(ctx, StageBulletToken).WithField("status", resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		e := authRejected(StageBulletToken, ErrorCodeInvalidGameWebToken, "Unauthorized error (ERROR_INVALID_GAME_WEB_TOKEN). Cannot fetch tokens at this time.")
		log.Error(e.Message)
		return "", e.WithStatus(resp.StatusCode).WithPayload(raw)
	case http.StatusForbidden:
		e := authRejected(StageBulletToken, ErrorCodeObsoleteVersion, "Forbidden error (ERROR_OBSOLETE_VERSION). Cannot fetch tokens at this time.")
		log.Error(e.Message)
		return "", e.WithStatus(resp.StatusCode).WithPayload(raw)
	case http.StatusNoContent:
		e := authRejected(StageBulletToken, ErrorCodeUserNotRegistered, "Cannot access SplatNet 3 without having played online.")
		log.Error(e.Message)
		return "", e.WithStatus(resp.StatusCode)
	}

	if !isSuccess(resp.StatusCode) {
		log.Errorf("Error from Nintendo (in api/bullet_tokens step):\n%s", prettyPayload(raw))
		return "", protocolError(StageBulletToken, ErrorCodeUnexpectedStatus, "bullet token request returned status %d", resp.StatusCode).
			WithStatus(resp.StatusCode).
			WithPayload(raw)
	}

	var out bulletTokenResponse
	if perr := decodeJSON(StageBulletToken, raw, &out); perr != nil {
		log.Errorf("Got non-JSON response from Nintendo (in api/bullet_tokens step):\n%s", raw)
		return "", perr.WithStatus(resp.StatusCode)
	}
	if out.BulletToken == "" {
		log.Errorf("Error from Nintendo (in api/bullet_tokens step):\n%s", prettyPayload(raw))
		return "", protocolError(StageBulletToken, ErrorCodeMissingFields, "bullet token response has no bulletToken").
			WithStatus(resp.StatusCode).
			WithPayload(raw)
	}

	return out.BulletToken, nil
}
