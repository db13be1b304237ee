package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/splatbot/nsoauth/internal/observability"
	"github.com/splatbot/nsoauth/internal/provider"
	"github.com/splatbot/nsoauth/internal/security"
	"github.com/splatbot/nsoauth/internal/utilities"
)

// AccountClient performs the Nintendo Account steps of the login.
type AccountClient interface {
	AuthorizationURL(ctx context.Context, ch *security.AuthChallenge) (string, error)
	SessionToken(ctx context.Context, code, verifier string) (string, error)
	Identity(ctx context.Context, sessionToken string) (*provider.IdentityBundle, error)
}

// Attestor mints single use F tokens.
type Attestor interface {
	Generate(ctx context.Context, req provider.AttestationRequest) (*provider.FToken, error)
}

// GameClient performs the Coral exchanges.
type GameClient interface {
	GameLogin(ctx context.Context, identity *provider.IdentityBundle, ft *provider.FToken) (*provider.GameCredential, error)
	WebServiceToken(ctx context.Context, cred *provider.GameCredential, ft *provider.FToken) (string, error)
}

// BulletClient fetches the SplatNet bullet token.
type BulletClient interface {
	BulletToken(ctx context.Context, req provider.BulletRequest) (string, error)
}

// GameWebToken is the web service token together with the account details
// the bullet token request needs.
type GameWebToken struct {
	WebServiceToken string
	Nickname        string
	Language        string
	Country         string
}

// Credentials is everything a run produces.
type Credentials struct {
	SessionToken    string     `json:"session_token,omitempty"`
	WebServiceToken string     `json:"gtoken"`
	BulletToken     string     `json:"bullet_token"`
	Nickname        string     `json:"nickname,omitempty"`
	Language        string     `json:"language,omitempty"`
	Country         string     `json:"country,omitempty"`
	ExpiresAt       *time.Time `json:"gtoken_expires_at,omitempty"`
}

// Service handles the token acquisition pipeline
type Service struct {
	account  AccountClient
	attestor Attestor
	game     GameClient
	bullet   BulletClient

	tracer   trace.Tracer
	retries  metric.Int64Counter
	failures metric.Int64Counter
}

// NewService creates a new token service
func NewService(account AccountClient, attestor Attestor, game GameClient, bullet BulletClient) *Service {
	return &Service{
		account:  account,
		attestor: attestor,
		game:     game,
		bullet:   bullet,
		tracer:   observability.Tracer("nsoauth/tokens"),
		retries:  observability.ObtainMetricCounter("nsoauth_stage_retries", "Number of exchanges retried with a fresh attestation token"),
		failures: observability.ObtainMetricCounter("nsoauth_pipeline_failures", "Number of pipeline runs that ended in an error"),
	}
}

// WithRunID attaches a fresh run identifier to ctx unless it already has one.
func WithRunID(ctx context.Context) context.Context {
	if utilities.GetRunID(ctx) != "" {
		return ctx
	}
	return utilities.WithRunID(ctx, uuid.Must(uuid.NewV4()).String())
}

func logEntry(ctx context.Context) *logrus.Entry {
	return logrus.WithField("run_id", utilities.GetRunID(ctx))
}

func (s *Service) stage(ctx context.Context, stage provider.Stage, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, string(stage))
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// fail counts err as a pipeline failure unless the user chose to stop.
func (s *Service) fail(ctx context.Context, stage provider.Stage, err error) error {
	if errors.Is(err, ErrManualEntry) || errors.Is(err, provider.ErrUserAbort) {
		return err
	}
	s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(stage))))
	return err
}

// Login runs the PKCE authorization and returns a session token. The
// redirect URL comes from redirects. If it returns ErrManualEntry so does
// Login.
func (s *Service) Login(ctx context.Context, redirects AuthorizationCodeProvider) (string, error) {
	ctx = WithRunID(ctx)
	log := logEntry(ctx)

	ch, err := security.NewAuthChallenge()
	if err != nil {
		return "", s.fail(ctx, provider.StageAuthorize, err)
	}

	var loginURL, redirect string
	err = s.stage(ctx, provider.StageAuthorize, func(ctx context.Context) error {
		var err error
		if loginURL, err = s.account.AuthorizationURL(ctx, ch); err != nil {
			return err
		}
		redirect, err = redirects.RedirectURL(ctx, loginURL)
		return err
	})
	if err != nil {
		return "", s.fail(ctx, provider.StageAuthorize, err)
	}

	code, err := provider.ExtractSessionTokenCode(redirect)
	if err != nil {
		return "", s.fail(ctx, provider.StageAuthorize, err)
	}

	var sessionToken string
	err = s.stage(ctx, provider.StageSessionToken, func(ctx context.Context) error {
		var err error
		sessionToken, err = s.account.SessionToken(ctx, code, ch.CodeVerifier)
		return err
	})
	if err != nil {
		return "", s.fail(ctx, provider.StageSessionToken, err)
	}

	log.Info("obtained session token")
	return sessionToken, nil
}

// GameWebToken turns a session token into a web service token: identity,
// then game login and web service token, each fed by its own F token and
// retried once.
func (s *Service) GameWebToken(ctx context.Context, sessionToken string) (*GameWebToken, error) {
	ctx = WithRunID(ctx)
	log := logEntry(ctx)

	var identity *provider.IdentityBundle
	err := s.stage(ctx, provider.StageIdentity, func(ctx context.Context) error {
		var err error
		identity, err = s.account.Identity(ctx, sessionToken)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, provider.StageIdentity, err)
	}

	var cred *provider.GameCredential
	err = s.stage(ctx, provider.StageGameLogin, func(ctx context.Context) error {
		var err error
		cred, err = retryOnce(ctx,
			func(ctx context.Context) (*provider.FToken, error) {
				return s.attestor.Generate(ctx, provider.AttestationRequest{
					Token: identity.IDToken,
					Step:  provider.StepGameLogin,
					NaID:  identity.UserID,
				})
			},
			func(ctx context.Context, ft *provider.FToken) (*provider.GameCredential, error) {
				return s.game.GameLogin(ctx, identity, ft)
			},
			s.onRetry(ctx, provider.StageGameLogin),
		)
		return err
	})
	if err != nil {
		logExchangeFailure(log, err)
		return nil, s.fail(ctx, provider.StageGameLogin, err)
	}

	var wst string
	err = s.stage(ctx, provider.StageWebServiceToken, func(ctx context.Context) error {
		var err error
		wst, err = retryOnce(ctx,
			func(ctx context.Context) (*provider.FToken, error) {
				return s.attestor.Generate(ctx, provider.AttestationRequest{
					Token:       cred.AccessToken,
					Step:        provider.StepWebServiceToken,
					NaID:        identity.UserID,
					CoralUserID: cred.CoralUserID,
				})
			},
			func(ctx context.Context, ft *provider.FToken) (string, error) {
				return s.game.WebServiceToken(ctx, cred, ft)
			},
			s.onRetry(ctx, provider.StageWebServiceToken),
		)
		return err
	})
	if err != nil {
		logExchangeFailure(log, err)
		return nil, s.fail(ctx, provider.StageWebServiceToken, err)
	}

	log.WithField("nickname", identity.Nickname).Info("obtained web service token")
	return &GameWebToken{
		WebServiceToken: wst,
		Nickname:        identity.Nickname,
		Language:        identity.Language,
		Country:         identity.Country,
	}, nil
}

func (s *Service) onRetry(ctx context.Context, stage provider.Stage) func(error) {
	return func(err error) {
		s.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(stage))))
		trace.SpanFromContext(ctx).AddEvent("retry", trace.WithAttributes(attribute.String("error", err.Error())))
		logEntry(ctx).WithField("stage", stage).WithError(err).Info("retrying with a fresh attestation token")
	}
}

// BulletToken fetches the bullet token for a web service token.
func (s *Service) BulletToken(ctx context.Context, gwt *GameWebToken) (string, error) {
	ctx = WithRunID(ctx)

	var bt string
	err := s.stage(ctx, provider.StageBulletToken, func(ctx context.Context) error {
		var err error
		bt, err = s.bullet.BulletToken(ctx, provider.BulletRequest{
			WebServiceToken: gwt.WebServiceToken,
			Language:        gwt.Language,
			Country:         gwt.Country,
		})
		return err
	})
	if err != nil {
		return "", s.fail(ctx, provider.StageBulletToken, err)
	}
	return bt, nil
}

// Acquire runs every stage after the login for an existing session token.
func (s *Service) Acquire(ctx context.Context, sessionToken string) (*Credentials, error) {
	ctx = WithRunID(ctx)

	gwt, err := s.GameWebToken(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	bt, err := s.BulletToken(ctx, gwt)
	if err != nil {
		return nil, err
	}

	creds := &Credentials{
		SessionToken:    sessionToken,
		WebServiceToken: gwt.WebServiceToken,
		BulletToken:     bt,
		Nickname:        gwt.Nickname,
		Language:        gwt.Language,
		Country:         gwt.Country,
	}
	if exp, err := TokenExpiry(gwt.WebServiceToken); err == nil {
		creds.ExpiresAt = &exp
	} else {
		logEntry(ctx).WithError(err).Debug("web service token expiry unavailable")
	}

	return creds, nil
}

// Run performs the whole pipeline, starting with the interactive login.
func (s *Service) Run(ctx context.Context, redirects AuthorizationCodeProvider) (*Credentials, error) {
	ctx = WithRunID(ctx)

	sessionToken, err := s.Login(ctx, redirects)
	if err != nil {
		return nil, err
	}
	return s.Acquire(ctx, sessionToken)
}
