package provider

import (
	"fmt"
	"strings"
)

// ErrorKind classifies why a pipeline stage failed.
type ErrorKind string

const (
	// KindNetwork means the upstream could not be reached or the body could not be read.
	KindNetwork ErrorKind = "network_error"
	// KindProtocol means a response arrived but was not usable.
	KindProtocol ErrorKind = "protocol_error"
	// KindAuthRejected means the upstream explicitly refused the credentials.
	KindAuthRejected ErrorKind = "auth_rejected"
	// KindUserAbort means the user cancelled an interactive step.
	KindUserAbort ErrorKind = "user_abort"
)

// ErrorCode narrows an ErrorKind to a specific, user-explainable condition.
type ErrorCode = string

const (
	ErrorCodeMissingFields        ErrorCode = "missing_fields"
	ErrorCodeNonJSON              ErrorCode = "non_json_response"
	ErrorCodeUnexpectedStatus     ErrorCode = "unexpected_status"
	ErrorCodeNoRedirect           ErrorCode = "no_redirect"
	ErrorCodeAuthorizationExpired ErrorCode = "authorization_expired"
	ErrorCodeMalformedRedirect    ErrorCode = "malformed_redirect"
	ErrorCodeInvalidGameWebToken  ErrorCode = "invalid_game_web_token"
	ErrorCodeObsoleteVersion      ErrorCode = "obsolete_version"
	ErrorCodeUserNotRegistered    ErrorCode = "user_not_registered"
)

// Stage names a step of the acquisition pipeline.
type Stage string

const (
	StageAuthorize       Stage = "authorize"
	StageSessionToken    Stage = "session_token"
	StageIdentity        Stage = "identity"
	StageAttestation     Stage = "attestation"
	StageGameLogin       Stage = "game_login"
	StageWebServiceToken Stage = "web_service_token"
	StageBulletToken     Stage = "bullet_token"
	StageManualEntry     Stage = "manual_entry"
	StageVersions        Stage = "versions"
)

// Error is the failure record returned by every stage.
type Error struct {
	Kind  ErrorKind `json:"kind"`
	Code  string    `json:"code,omitempty"`
	Stage Stage     `json:"stage,omitempty"`

	// Message is safe to show to the user.
	Message string `json:"msg,omitempty"`

	// Payload is the raw upstream body, when one was received.
	Payload string `json:"-"`

	StatusCode    int   `json:"-"`
	InternalError error `json:"-"`
}

// Sentinels for errors.Is. A sentinel without a Code matches every error of
// its kind.
var (
	ErrNetwork      = &Error{Kind: KindNetwork}
	ErrProtocol     = &Error{Kind: KindProtocol}
	ErrAuthRejected = &Error{Kind: KindAuthRejected}
	ErrUserAbort    = &Error{Kind: KindUserAbort}

	ErrAuthorizationExpired = &Error{Kind: KindProtocol, Code: ErrorCodeAuthorizationExpired}
	ErrMalformedRedirect    = &Error{Kind: KindAuthRejected, Code: ErrorCodeMalformedRedirect}
	ErrInvalidGameWebToken  = &Error{Kind: KindAuthRejected, Code: ErrorCodeInvalidGameWebToken}
	ErrObsoleteVersion      = &Error{Kind: KindAuthRejected, Code: ErrorCodeObsoleteVersion}
	ErrUserNotRegistered    = &Error{Kind: KindAuthRejected, Code: ErrorCodeUserNotRegistered}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Stage != "" {
		b.WriteString(string(e.Stage))
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Kind))
		if e.Code != "" {
			b.WriteString(" (" + e.Code + ")")
		}
	}
	if e.InternalError != nil {
		b.WriteString(": ")
		b.WriteString(e.InternalError.Error())
	}
	return b.String()
}

// Is matches on Kind, and on Code when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func (e *Error) Unwrap() error {
	return e.InternalError
}

// Cause returns the root cause error
func (e *Error) Cause() error {
	if e.InternalError != nil {
		return e.InternalError
	}
	return e
}

// WithInternalError adds internal error information to the error
func (e *Error) WithInternalError(err error) *Error {
	e.InternalError = err
	return e
}

// WithPayload attaches the raw upstream body.
func (e *Error) WithPayload(body []byte) *Error {
	e.Payload = string(body)
	return e
}

// WithStatus records the upstream HTTP status code.
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// Retryable reports whether a fresh attestation token could make a second
// exchange attempt succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindProtocol
}

func newError(kind ErrorKind, stage Stage, code string, fmtString string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Stage:   stage,
		Code:    code,
		Message: fmt.Sprintf(fmtString, args...),
	}
}

func networkError(stage Stage, target string, err error) *Error {
	return newError(KindNetwork, stage, "", "could not reach %s", target).WithInternalError(err)
}

func protocolError(stage Stage, code string, fmtString string, args ...any) *Error {
	return newError(KindProtocol, stage, code, fmtString, args...)
}

func authRejected(stage Stage, code string, fmtString string, args ...any) *Error {
	return newError(KindAuthRejected, stage, code, fmtString, args...)
}

// UserAbort reports an interactive cancellation in the given stage.
func UserAbort(stage Stage, err error) *Error {
	return newError(KindUserAbort, stage, "", "cancelled by user").WithInternalError(err)
}
