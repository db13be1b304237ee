package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

// Step selects which exchange an attestation token is minted for.
type Step int

const (
	// StepGameLogin mints a token for the game login exchange, bound to the id token.
	StepGameLogin Step = 1
	// StepWebServiceToken mints a token for the web service token exchange,
	// bound to the game access token and the coral user id.
	StepWebServiceToken Step = 2
)

func (s Step) String() string {
	switch s {
	case StepGameLogin:
		return "game_login"
	case StepWebServiceToken:
		return "web_service_token"
	default:
		return "step_" + strconv.Itoa(int(s))
	}
}

// AttestationRequest is what the attestation service signs.
type AttestationRequest struct {
	Token string
	Step  Step
	NaID  AccountID

	// CoralUserID is only sent for StepWebServiceToken.
	CoralUserID int64
}

// FToken is a single use attestation token.
type FToken struct {
	F         string
	RequestID string
	Timestamp int64
	Step      Step

	CoralUserID int64
}

type attestationBody struct {
	Token       string    `json:"token"`
	HashMethod  Step      `json:"hash_method"`
	NaID        AccountID `json:"na_id"`
	CoralUserID string    `json:"coral_user_id,omitempty"`
}

// redacted renders the body for logs with the token shortened.
func (b attestationBody) redacted() string {
	if len(b.Token) > 8 {
		b.Token = b.Token[:8] + "..."
	} else {
		b.Token = "***"
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return ""
	}
	return string(raw)
}

type attestationResponse struct {
	F         *string      `json:"f"`
	RequestID *string      `json:"request_id"`
	Timestamp *json.Number `json:"timestamp"`
}

// Attestation is a client for the external f token service.
type Attestation struct {
	rc      RunContext
	client  *http.Client
	limiter *rate.Limiter
	counter metric.Int64Counter
}

// AttestationOption configures an Attestation client.
type AttestationOption func(*Attestation)

// WithRateLimiter throttles outbound attestation calls.
func WithRateLimiter(l *rate.Limiter) AttestationOption {
	return func(a *Attestation) {
		a.limiter = l
	}
}

// WithRequestCounter counts attestation calls by step and outcome.
func WithRequestCounter(c metric.Int64Counter) AttestationOption {
	return func(a *Attestation) {
		a.counter = c
	}
}

func NewAttestation(rc RunContext, client *http.Client, opts ...AttestationOption) *Attestation {
	a := &Attestation{rc: rc, client: client}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate mints one F token. It never retries.
func (a *Attestation) Generate(ctx context.Context, in AttestationRequest) (*FToken, error) {
	ft, err := a.generate(ctx, in)
	if a.counter != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		a.counter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("step", in.Step.String()),
			attribute.String("outcome", outcome),
		))
	}
	return ft, err
}

func (a *Attestation) generate(ctx context.Context, in AttestationRequest) (*FToken, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, networkError(StageAttestation, a.rc.AttestationURL, err)
		}
	}

	body := attestationBody{
		Token:      in.Token,
		HashMethod: in.Step,
		NaID:       in.NaID,
	}
	if in.Step == StepWebServiceToken && in.CoralUserID != 0 {
		body.CoralUserID = strconv.FormatInt(in.CoralUserID, 10)
	}

	req, err := newJSONRequest(ctx, http.MethodPost, a.rc.AttestationURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", a.rc.AttestationUserAgent)
	req.Header.Set("X-znca-Platform", "Android")
	req.Header.Set("X-znca-Version", a.rc.AppVersion)

	log := logEntry(ctx, StageAttestation).WithFields(logrus.Fields{
		"step":         in.Step.String(),
		"url":          a.rc.AttestationURL,
		"request_body": body.redacted(),
	})
	log.Debug("requesting f token")

	resp, raw, err := send(a.client, req, StageAttestation)
	if err != nil {
		log.WithError(err).Warn("could not connect to the f generation service")
		return nil, err
	}

	fail := func(e *Error) (*FToken, error) {
		log.WithField("status", resp.StatusCode).Warnf("Error during f generation:\n%s", prettyPayload(raw))
		return nil, e.WithStatus(resp.StatusCode)
	}

	if !isSuccess(resp.StatusCode) {
		return fail(protocolError(StageAttestation, ErrorCodeUnexpectedStatus, "f generation returned status %d", resp.StatusCode).WithPayload(raw))
	}

	var out attestationResponse
	if perr := decodeJSON(StageAttestation, raw, &out); perr != nil {
		return fail(perr)
	}
	if out.F == nil || out.RequestID == nil || out.Timestamp == nil {
		return fail(protocolError(StageAttestation, ErrorCodeMissingFields, "f generation response is missing f, request_id or timestamp").WithPayload(raw))
	}

	ts, err := out.Timestamp.Int64()
	if err != nil {
		return fail(protocolError(StageAttestation, ErrorCodeMissingFields, "f generation timestamp is not an integer").WithPayload(raw).WithInternalError(err))
	}

	return &FToken{
		F:           *out.F,
		RequestID:   *out.RequestID,
		Timestamp:   ts,
		Step:        in.Step,
		CoralUserID: in.CoralUserID,
	}, nil
}
