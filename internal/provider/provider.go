package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/splatbot/nsoauth/internal/conf"
	"github.com/splatbot/nsoauth/internal/utilities"
)

const (
	jsonContentType = "application/json; charset=utf-8"
	formContentType = "application/x-www-form-urlencoded"
)

// Endpoints are the base URLs of the upstream services.
type Endpoints struct {
	Accounts    string
	AccountsAPI string
	Coral       string
	SplatNet    string
}

// RunContext is the immutable set of client identifiers, versions and
// endpoints shared by every stage of one pipeline run. It is passed by value.
type RunContext struct {
	ClientID    string
	RedirectURI string
	Scope       string

	AppVersion       string
	OSVersion        string
	BrowserUserAgent string

	WebViewVersion string
	AppUserAgent   string
	GameID         int64

	AttestationURL       string
	AttestationUserAgent string

	Endpoints Endpoints
}

// NewRunContext derives a RunContext from the configured defaults.
func NewRunContext(config *conf.GlobalConfiguration) RunContext {
	return RunContext{
		ClientID:             config.Nintendo.ClientID,
		RedirectURI:          config.Nintendo.RedirectURI,
		Scope:                config.Nintendo.Scopes,
		AppVersion:           config.Nintendo.AppVersion,
		OSVersion:            config.Nintendo.OSVersion,
		BrowserUserAgent:     config.Nintendo.BrowserUserAgent,
		WebViewVersion:       config.SplatNet.WebViewVersion,
		AppUserAgent:         config.SplatNet.AppUserAgent,
		GameID:               config.SplatNet.GameID,
		AttestationURL:       config.Attestation.URL,
		AttestationUserAgent: utilities.UserAgent(config.Attestation.UserAgent),
		Endpoints: Endpoints{
			Accounts:    config.Nintendo.AccountsURL,
			AccountsAPI: config.Nintendo.AccountsAPIURL,
			Coral:       config.Nintendo.CoralURL,
			SplatNet:    config.SplatNet.URL,
		},
	}
}

// WithVersions returns a copy using the given app and web view versions.
// Empty values keep the current ones.
func (rc RunContext) WithVersions(appVersion, webViewVersion string) RunContext {
	if appVersion != "" {
		rc.AppVersion = appVersion
	}
	if webViewVersion != "" {
		rc.WebViewVersion = webViewVersion
	}
	return rc
}

// AccountsUserAgent is the user agent the NSO app sends to the accounts API.
func (rc RunContext) AccountsUserAgent() string {
	return "OnlineLounge/" + rc.AppVersion + " NASDKAPI Android"
}

// CoralUserAgent is the user agent the NSO app sends to Coral.
func (rc RunContext) CoralUserAgent() string {
	return "com.nintendo.znca/" + rc.AppVersion + "(" + rc.OSVersion + ")"
}

func newJSONRequest(ctx context.Context, method, target string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", jsonContentType)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// logEntry starts a log line for stage carrying the run id found in ctx.
func logEntry(ctx context.Context, stage Stage) *logrus.Entry {
	entry := logrus.WithField("stage", stage)
	if id := utilities.GetRunID(ctx); id != "" {
		entry = entry.WithField("run_id", id)
	}
	return entry
}

// send performs the request and buffers the response body.
func send(client *http.Client, req *http.Request, stage Stage) (*http.Response, []byte, error) {
	log := logEntry(req.Context(), stage)

	resp, err := client.Do(req)
	if err != nil {
		log.WithField("url", req.URL.Redacted()).WithError(err).Error("upstream request failed")
		return nil, nil, networkError(stage, req.URL.Host, err)
	}
	defer utilities.SafeClose(resp.Body)

	body, err := utilities.ReadBody(resp.Body)
	if err != nil {
		return nil, nil, networkError(stage, req.URL.Host, err)
	}

	log.WithField("status", resp.StatusCode).Debug("upstream responded")

	return resp, body, nil
}

func decodeJSON(stage Stage, body []byte, v any) *Error {
	if err := json.Unmarshal(body, v); err != nil {
		return protocolError(stage, ErrorCodeNonJSON, "upstream returned a non-JSON response").
			WithPayload(body).
			WithInternalError(err)
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// prettyPayload indents JSON payloads for logging and returns anything else verbatim.
func prettyPayload(body []byte) string {
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return string(body)
	}
	return out.String()
}
